// Package request declares the outbound command catalog and the API
// that pairs a sent command with its response packet. Requests are
// data: a command id plus a payload builder that validates before
// anything touches the wire.
package request

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Request is one outbound extension command.
type Request interface {
	// Command is the wire command id the server answers on.
	Command() string
	// Payload builds the JSON document. Validation failures surface
	// here as *ValidationError before any send.
	Payload() (any, error)
}

// Wire is the slice of the transport the API needs.
type Wire interface {
	Send(ctx context.Context, frame string) error
}

// ParseFunc turns a response packet into a typed value.
type ParseFunc func(pkt *protocol.Packet) (any, error)

// Registry maps response commands to parsers. Commands without a parser
// resolve to the raw packet.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]ParseFunc
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]ParseFunc)}
	registerDefaults(r)
	return r
}

// Register installs or replaces the parser for a command.
func (r *Registry) Register(command string, fn ParseFunc) {
	r.mu.Lock()
	r.parsers[command] = fn
	r.mu.Unlock()
}

// Parse resolves a packet through the registered parser, or returns the
// packet itself when none is registered.
func (r *Registry) Parse(pkt *protocol.Packet) (any, error) {
	r.mu.RLock()
	fn := r.parsers[pkt.Command]
	r.mu.RUnlock()
	if fn == nil {
		return pkt, nil
	}
	return fn(pkt)
}

// API sends requests and correlates responses through the dispatcher.
type API struct {
	zone    string
	timeout time.Duration
	conn    Wire
	disp    *dispatch.Dispatcher
	reg     *Registry
	log     *zap.Logger

	// authed gates commands that require a completed login. nil means
	// no gating.
	authed func() bool

	seqMu sync.Mutex
	seq   int
}

type APIOptions struct {
	Zone    string
	Timeout time.Duration
	Authed  func() bool
}

func NewAPI(opts APIOptions, conn Wire, disp *dispatch.Dispatcher, reg *Registry, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &API{
		zone:    opts.Zone,
		timeout: opts.Timeout,
		conn:    conn,
		disp:    disp,
		reg:     reg,
		log:     log.With(zap.String("component", "request")),
		authed:  opts.Authed,
	}
}

// Send fires a request without waiting for its response. The state
// store still consumes whatever the server pushes back.
func (a *API) Send(ctx context.Context, req Request) error {
	frame, err := a.encode(req)
	if err != nil {
		return err
	}
	return a.conn.Send(ctx, frame)
}

// Do sends a request and blocks for the first response packet with the
// same command. The waiter is armed before the send. A response whose
// status is non-zero returns *ServerError; otherwise the registry
// parser shapes the result.
func (a *API) Do(ctx context.Context, req Request) (any, error) {
	frame, err := a.encode(req)
	if err != nil {
		return nil, err
	}
	pw, err := a.disp.Waiter(req.Command(), nil)
	if err != nil {
		return nil, err
	}
	if err := a.conn.Send(ctx, frame); err != nil {
		pw.Cancel()
		return nil, err
	}
	pkt, err := pw.Await(ctx, a.timeout)
	if err != nil {
		return nil, gameerr.Wrap(err, req.Command())
	}
	if pkt.ErrorCode != 0 {
		return nil, &gameerr.ServerError{Command: req.Command(), Code: pkt.ErrorCode}
	}
	return a.reg.Parse(pkt)
}

func (a *API) encode(req Request) (string, error) {
	if a.authed != nil && !a.authed() {
		return "", gameerr.ErrNotLoggedIn
	}
	payload, err := req.Payload()
	if err != nil {
		return "", err
	}
	return protocol.EncodeExtension(a.zone, req.Command(), a.nextSeq(), payload)
}

// nextSeq yields the frame sequence token. The server echoes sequence 1
// on every response regardless, so this is bookkeeping for logs more
// than correlation.
func (a *API) nextSeq() int {
	a.seqMu.Lock()
	defer a.seqMu.Unlock()
	a.seq++
	if a.seq > 9999 {
		a.seq = 1
	}
	return a.seq
}
