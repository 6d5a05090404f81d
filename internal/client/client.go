// Package client composes transport, dispatch, session, state and the
// request API into one game client. Construction wires everything;
// nothing talks to the network until Login.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/config"
	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	"github.com/nmxmxh/empire-core/internal/request"
	"github.com/nmxmxh/empire-core/internal/scan"
	"github.com/nmxmxh/empire-core/internal/service/alliance"
	"github.com/nmxmxh/empire-core/internal/service/ranking"
	"github.com/nmxmxh/empire-core/internal/session"
	"github.com/nmxmxh/empire-core/internal/state"
	"github.com/nmxmxh/empire-core/internal/store"
	"github.com/nmxmxh/empire-core/internal/transport"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Client is the facade over the whole stack.
type Client struct {
	cfg   *config.Config
	log   *zap.Logger
	conn  *transport.Conn
	disp  *dispatch.Dispatcher
	world *state.Store
	sess  *session.Session
	api   *request.API

	// Ranking and Alliance expose the typed service layers.
	Ranking  *ranking.Service
	Alliance *alliance.Service

	persist store.Store
	closed  atomic.Bool

	mu           sync.Mutex
	onDisconnect []func()

	// reconnects wakes the supervisor; buffered so the transport
	// callback never blocks.
	reconnects  chan struct{}
	supervising atomic.Bool
}

// New wires a client from configuration. The state store subscribes
// before anything else so its view is current by the time waiters and
// later subscribers observe a packet.
func New(cfg *config.Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg,
		log:        log.With(zap.String("component", "client")),
		reconnects: make(chan struct{}, 1),
	}

	c.disp = dispatch.New(log)
	c.world = state.NewStore(log)
	for _, command := range state.Commands() {
		c.disp.Subscribe(command, c.world.Apply)
	}

	c.conn = transport.New(transport.Config{
		URL:    cfg.ServerURL,
		Origin: cfg.Origin,
	}, log)
	c.conn.OnPacket(c.disp.Dispatch)
	c.conn.OnDisconnect(c.handleDisconnect)

	c.sess = session.New(cfg, c.conn, c.disp, log)
	c.api = request.NewAPI(request.APIOptions{
		Zone:    cfg.Zone,
		Timeout: cfg.RequestTimeout,
		Authed:  c.sess.LoggedIn,
	}, c.conn, c.disp, nil, log)

	c.Ranking = ranking.New(c.api, log)
	c.Alliance = alliance.New(c.api, c.disp, log)
	return c
}

// SetPersistence attaches an optional store used by Scan.
func (c *Client) SetPersistence(s store.Store) { c.persist = s }

// Login connects if needed and authenticates.
func (c *Client) Login(ctx context.Context) error {
	if c.closed.Load() {
		return gameerr.ErrConnectionClosed
	}
	return c.sess.Login(ctx)
}

// Logout tears the connection down. The wire has no logout command;
// closing the socket is how a session ends.
func (c *Client) Logout() error { return c.Close() }

// Close disconnects and stops any reconnect supervision.
func (c *Client) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

func (c *Client) Connected() bool { return c.conn.Connected() }
func (c *Client) LoggedIn() bool  { return c.sess.LoggedIn() }

// State exposes the live world snapshot.
func (c *Client) State() *state.Store { return c.world }

// Do sends a typed request and waits for its parsed response.
func (c *Client) Do(ctx context.Context, req request.Request) (any, error) {
	return c.api.Do(ctx, req)
}

// Send fires a typed request without waiting for a response.
func (c *Client) Send(ctx context.Context, req request.Request) error {
	return c.api.Send(ctx, req)
}

// RefreshMovements asks for a fresh movement snapshot. The response is
// folded into the state store by its subscription.
func (c *Client) RefreshMovements(ctx context.Context) error {
	return c.api.Send(ctx, request.Movements{})
}

// WaitFor blocks for the next packet of a command accepted by pred.
func (c *Client) WaitFor(ctx context.Context, command string, pred dispatch.Predicate, timeout time.Duration) (*protocol.Packet, error) {
	return c.disp.WaitFor(ctx, command, pred, timeout)
}

// Subscribe attaches a handler to every inbound packet of a command.
func (c *Client) Subscribe(command string, h dispatch.Handler) *dispatch.Subscription {
	return c.disp.Subscribe(command, h)
}

// Unsubscribe detaches a subscription.
func (c *Client) Unsubscribe(sub *dispatch.Subscription) {
	c.disp.Unsubscribe(sub)
}

// OnIncomingAttack registers fn for first observations of hostile
// movements targeting the player.
func (c *Client) OnIncomingAttack(fn func(*state.Movement)) *state.MovementCallback {
	return c.world.OnIncomingAttack(fn)
}

// OnMovementRecalled registers fn for movements that vanish from a
// snapshot without having arrived.
func (c *Client) OnMovementRecalled(fn func(*state.Movement)) *state.MovementCallback {
	return c.world.OnMovementRecalled(fn)
}

// OnDisconnect registers fn to run after the connection closes and all
// waiters were cancelled.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

// Scan walks a kingdom outward from center and returns what it found.
// Results go through the attached persistence when one is set.
func (c *Client) Scan(ctx context.Context, kingdomID int, center store.Chunk, opts scan.Options) (*scan.Result, error) {
	if opts.Rate <= 0 {
		opts.Rate = c.cfg.ScanRate
	}
	scanner := scan.New(opts, c.api, c.disp, c.world, c.persist, c.log)
	return scanner.Run(ctx, kingdomID, center)
}

// handleDisconnect runs on the transport reader goroutine when the
// socket dies. Order matters: gate new waiters, fail pending ones,
// drop the session, then let the application react.
func (c *Client) handleDisconnect() {
	c.disp.SetOnline(false)
	c.disp.CancelAll(gameerr.ErrConnectionClosed)
	c.sess.Reset()

	c.mu.Lock()
	callbacks := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		c.runCallback(fn)
	}

	if !c.closed.Load() {
		select {
		case c.reconnects <- struct{}{}:
		default:
		}
	}
}

func (c *Client) runCallback(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("disconnect callback panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}
