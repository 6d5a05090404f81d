// Package errors defines the error taxonomy shared by the empire-core
// client layers. Transport and decode problems are handled close to the
// socket; everything request-driven surfaces to the caller as one of
// the types below.
package errors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when an operation requires an open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned when connecting an open connection.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrConnectionClosed is returned to waiters when the connection closes under them.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrTimeout is returned when no matching response arrives in the wait window.
	ErrTimeout = errors.New("timed out waiting for response")
	// ErrNotLoggedIn is returned when a request requires an authenticated session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrWaitCancelled is returned to a waiter that was disarmed by its owner.
	ErrWaitCancelled = errors.New("wait cancelled")
)

// LoginCooldownError is an authoritative login refusal with retry-after.
type LoginCooldownError struct {
	Seconds int
}

func (e *LoginCooldownError) Error() string {
	return fmt.Sprintf("login cooldown: retry in %ds", e.Seconds)
}

// AuthFailedError is any non-zero, non-cooldown login status.
type AuthFailedError struct {
	Code int
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authentication failed: server code %d", e.Code)
}

// ServerError is a response whose payload carries an explicit error
// status. Only surfaced when the caller asked for a typed response.
type ServerError struct {
	Command string
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected %s: code %d", e.Command, e.Code)
	}
	return fmt.Sprintf("server rejected %s: code %d (%s)", e.Command, e.Code, e.Message)
}

// ValidationError is raised synchronously when a request value is
// impossible to send (for example an attack with no units).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// DecodeError marks a malformed wire frame. It is counted and dropped
// at the reader loop and never reaches callers.
type DecodeError struct {
	Reason string
	Frame  string
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Reason
}

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap wraps an error with additional context, preserving the chain
// for errors.Is and errors.As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// LogWithError logs the error with fields and returns a wrapped error.
// Use this for standardized error logging across the client layers.
func LogWithError(ctx context.Context, log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		if ctx != nil && ctx.Err() != nil {
			fields = append(fields, zap.NamedError("cause", ctx.Err()))
		}
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}
