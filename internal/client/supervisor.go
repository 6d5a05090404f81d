package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	cb "github.com/sony/gobreaker"
	"go.uber.org/zap"

	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	"github.com/nmxmxh/empire-core/pkg/metrics"
)

// StartReconnect supervises the connection until ctx ends: whenever
// the socket drops it re-runs Login under exponential backoff and a
// circuit breaker. Reconnection is opt-in; nothing starts it
// implicitly.
func (c *Client) StartReconnect(ctx context.Context) {
	if !c.supervising.CompareAndSwap(false, true) {
		return
	}
	breaker := cb.NewCircuitBreaker(cb.Settings{
		Name:     "login",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to cb.State) {
			c.log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	go c.supervise(ctx, breaker)
}

func (c *Client) supervise(ctx context.Context, breaker *cb.CircuitBreaker) {
	defer c.supervising.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.reconnects:
		}
		if c.closed.Load() {
			return
		}
		if c.Connected() && c.LoggedIn() {
			continue
		}

		c.log.Info("connection lost, reconnecting")
		if err := c.reconnect(ctx, breaker); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.log.Error("reconnect abandoned", zap.Error(err))
			return
		}
		c.log.Info("reconnected")
	}
}

func (c *Client) reconnect(ctx context.Context, breaker *cb.CircuitBreaker) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 2 * time.Minute
	// Retry until the context ends; MaxElapsedTime would give up.
	bo.MaxElapsedTime = 0

	operation := func() error {
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, c.sess.Login(ctx)
		})
		if err == nil {
			metrics.ReconnectsTotal.Inc()
			return nil
		}

		var cooldown *gameerr.LoginCooldownError
		if errors.As(err, &cooldown) {
			c.log.Warn("login cooldown, holding off",
				zap.Int("seconds", cooldown.Seconds))
			select {
			case <-time.After(time.Duration(cooldown.Seconds) * time.Second):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		var auth *gameerr.AuthFailedError
		if errors.As(err, &auth) {
			// Wrong credentials stay wrong; retrying hammers the
			// server for nothing.
			return backoff.Permanent(err)
		}
		c.log.Warn("reconnect attempt failed", zap.Error(err))
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}
