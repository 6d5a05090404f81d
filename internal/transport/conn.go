// Package transport owns the WebSocket link to the game server: dialing,
// the reader loop, frame decoding, and serialized writes. It knows
// nothing about commands; decoded packets are handed to a single
// OnPacket sink (the dispatcher) and connection loss to OnDisconnect.
package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	"github.com/nmxmxh/empire-core/pkg/metrics"
)

// Connection states. Transitions: Closed -> Connecting -> Open -> Closing -> Closed.
const (
	StateClosed int32 = iota
	StateConnecting
	StateOpen
	StateClosing
)

// Config carries the dial parameters.
type Config struct {
	URL              string
	Origin           string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Conn is a reconnectable client connection. A single Conn value is
// reused across connect/close cycles; Send and Close are safe from any
// goroutine.
type Conn struct {
	cfg Config
	log *zap.Logger

	state atomic.Int32

	mu  sync.Mutex // guards ws pointer and generation across cycles
	ws  *websocket.Conn
	gen uint64 // bumped per successful dial, stops stale reader teardown

	writeMu sync.Mutex // gorilla allows one concurrent writer

	onPacket     func(*protocol.Packet)
	onDisconnect func()
}

func New(cfg Config, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Conn{
		cfg: cfg,
		log: log.With(zap.String("component", "transport")),
	}
}

// OnPacket sets the sink for decoded inbound frames. Set before Connect;
// the handler runs on the reader goroutine.
func (c *Conn) OnPacket(fn func(*protocol.Packet)) {
	c.mu.Lock()
	c.onPacket = fn
	c.mu.Unlock()
}

// OnDisconnect sets the handler invoked once per connection loss,
// whether initiated locally or by the peer.
func (c *Conn) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Connected reports whether the link is open.
func (c *Conn) Connected() bool {
	return c.state.Load() == StateOpen
}

// Connect dials the server and starts the reader loop. Connecting an
// already open connection returns ErrAlreadyConnected.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateClosed, StateConnecting) {
		return gameerr.ErrAlreadyConnected
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.state.Store(StateClosed)
		if resp != nil {
			return gameerr.Wrap(err, "dial "+c.cfg.URL+" (status "+resp.Status+")")
		}
		return gameerr.Wrap(err, "dial "+c.cfg.URL)
	}

	c.mu.Lock()
	c.ws = ws
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.state.Store(StateOpen)
	c.log.Info("connected", zap.String("url", c.cfg.URL))

	go c.readLoop(ws, gen)
	return nil
}

// Send writes one frame. The trailing NUL of the legacy socket protocol
// must not be appended here; WebSocket message boundaries replace it.
func (c *Conn) Send(ctx context.Context, frame string) error {
	if c.state.Load() != StateOpen {
		return gameerr.ErrNotConnected
	}
	frame = strings.TrimRight(frame, "\x00")

	c.mu.Lock()
	ws := c.ws
	gen := c.gen
	c.mu.Unlock()
	if ws == nil {
		return gameerr.ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return gameerr.Wrap(err, "set write deadline")
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.teardown(ws, gen, err)
		return gameerr.Wrap(err, "write frame")
	}
	metrics.FramesSentTotal.WithLabelValues(frameDialect(frame)).Inc()
	return nil
}

// Close shuts the link down and fires OnDisconnect. Closing a closed
// connection is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws := c.ws
	gen := c.gen
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	c.teardown(ws, gen, nil)
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.teardown(ws, gen, err)
			return
		}
		if len(data) == 0 {
			continue
		}
		pkt, err := protocol.Decode(data)
		if err != nil {
			metrics.DecodeErrorsTotal.Inc()
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		c.mu.Lock()
		sink := c.onPacket
		c.mu.Unlock()
		if sink != nil {
			sink(pkt)
		}
	}
}

// teardown closes the socket once per generation and notifies the
// disconnect handler. Callers may race here from the reader loop, Send
// failures, and Close; the generation check keeps a stale reader from
// tearing down a newer connection.
func (c *Conn) teardown(ws *websocket.Conn, gen uint64, cause error) {
	c.mu.Lock()
	if c.ws != ws || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	handler := c.onDisconnect
	c.mu.Unlock()

	c.state.Store(StateClosing)
	if err := ws.Close(); err != nil {
		c.log.Debug("socket close", zap.Error(err))
	}
	c.state.Store(StateClosed)

	if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Warn("connection lost", zap.Error(cause))
	} else {
		c.log.Info("disconnected")
	}

	if handler != nil {
		handler()
	}
}

func frameDialect(frame string) string {
	if strings.HasPrefix(frame, "<") {
		return string(protocol.DialectXML)
	}
	return string(protocol.DialectExtension)
}
