// Package session drives the login handshake: version check, zone
// login, room join and the credential exchange. It owns the logged-in
// flag; the client facade resets it on disconnect.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/config"
	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Server status code on lli meaning the account is temporarily locked
// out and the payload carries the remaining seconds under CD.
const codeLoginCooldown = 21

// Wire is the slice of the transport the session needs.
type Wire interface {
	Connected() bool
	Connect(ctx context.Context) error
	Send(ctx context.Context, frame string) error
}

type Session struct {
	cfg  *config.Config
	conn Wire
	disp *dispatch.Dispatcher
	log  *zap.Logger

	loggedIn atomic.Bool
}

func New(cfg *config.Config, conn Wire, disp *dispatch.Dispatcher, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		cfg:  cfg,
		conn: conn,
		disp: disp,
		log:  log.With(zap.String("component", "session")),
	}
	disp.Subscribe(protocol.ActionLogKO, func(pkt *protocol.Packet) {
		s.log.Warn("zone login rejected by server", zap.String("body", pkt.RawBody))
	})
	return s
}

// LoggedIn reports whether the credential exchange has completed on the
// current connection.
func (s *Session) LoggedIn() bool {
	return s.loggedIn.Load()
}

// Reset clears the logged-in flag. Called by the owner on disconnect.
func (s *Session) Reset() {
	s.loggedIn.Store(false)
}

// Login performs the full handshake. A cooldown refusal surfaces as
// *LoginCooldownError, any other refusal as *AuthFailedError; neither
// is retried here.
func (s *Session) Login(ctx context.Context) error {
	if s.cfg.Username == "" {
		return &gameerr.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if s.cfg.Password == "" {
		return &gameerr.ValidationError{Field: "password", Reason: "must not be empty"}
	}

	if !s.conn.Connected() {
		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		err := s.conn.Connect(dialCtx)
		cancel()
		if err != nil {
			return gameerr.Wrap(err, "connect")
		}
	}
	s.disp.SetOnline(true)

	if err := s.exchange(ctx, protocol.ActionAPIOK,
		protocol.VersionCheckMessage(s.cfg.GameVersion), s.cfg.RequestTimeout, "version check"); err != nil {
		return err
	}
	if err := s.exchange(ctx, protocol.ActionRLU,
		protocol.ZoneLoginMessage(s.cfg.Zone), s.cfg.LoginTimeout, "zone login"); err != nil {
		return err
	}

	// The join acknowledgement is optional on some server builds; a
	// quiet timeout here does not abort the handshake.
	if err := s.exchange(ctx, protocol.ActionJoinOK,
		protocol.AutoJoinMessage(), s.cfg.RequestTimeout, "auto join"); err != nil {
		if !errors.Is(err, gameerr.ErrTimeout) {
			return err
		}
		s.log.Debug("no join acknowledgement, continuing")
	}

	return s.sendCredentials(ctx)
}

// exchange arms a waiter for the action, sends the frame and blocks for
// the response. The waiter is registered before the send so a fast
// server cannot slip the reply past it.
func (s *Session) exchange(ctx context.Context, action, frame string, timeout time.Duration, step string) error {
	pw, err := s.disp.Waiter(action, nil)
	if err != nil {
		return gameerr.Wrap(err, step)
	}
	if err := s.conn.Send(ctx, frame); err != nil {
		pw.Cancel()
		return gameerr.Wrap(err, step)
	}
	if _, err := pw.Await(ctx, timeout); err != nil {
		return gameerr.Wrap(err, step)
	}
	return nil
}

func (s *Session) sendCredentials(ctx context.Context) error {
	pw, err := s.disp.Waiter(protocol.CmdLogin, nil)
	if err != nil {
		return gameerr.Wrap(err, "credential login")
	}
	frame, err := protocol.EncodeExtension(s.cfg.Zone, protocol.CmdLogin, 1, loginPayload(s.cfg.Username, s.cfg.Password))
	if err != nil {
		pw.Cancel()
		return err
	}
	if err := s.conn.Send(ctx, frame); err != nil {
		pw.Cancel()
		return gameerr.Wrap(err, "credential login")
	}
	pkt, err := pw.Await(ctx, s.cfg.LoginTimeout)
	if err != nil {
		return gameerr.Wrap(err, "credential login")
	}

	switch pkt.ErrorCode {
	case 0:
		s.loggedIn.Store(true)
		s.log.Info("logged in",
			zap.String("username", s.cfg.Username),
			zap.String("zone", s.cfg.Zone))
		return nil
	case codeLoginCooldown:
		seconds := 0
		if m := pkt.PayloadMap(); m != nil {
			if cd, ok := m["CD"].(float64); ok {
				seconds = int(cd)
			}
		}
		s.log.Warn("login refused by cooldown", zap.Int("seconds", seconds))
		return &gameerr.LoginCooldownError{Seconds: seconds}
	default:
		s.log.Warn("authentication failed", zap.Int("code", pkt.ErrorCode))
		return &gameerr.AuthFailedError{Code: pkt.ErrorCode}
	}
}
