// Package dispatch routes decoded packets to durable subscriptions and
// one-shot waiters. For every packet, subscribers run before waiters,
// so state handlers observe an update before the request that triggered
// it is resolved.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	"github.com/nmxmxh/empire-core/pkg/metrics"
)

// Handler consumes every packet for a command. Handlers run on the
// reader goroutine; long work belongs on a separate goroutine.
type Handler func(*protocol.Packet)

// Predicate filters packets for a waiter. A nil predicate matches the
// first packet for the command.
type Predicate func(*protocol.Packet) bool

// Subscription is the removal handle returned by Subscribe.
type Subscription struct {
	id      string
	command string
	handler Handler
}

// Command returns the command the subscription listens on.
func (s *Subscription) Command() string { return s.command }

// Dispatcher fans packets out by command name. The zero value is not
// usable; construct with New.
type Dispatcher struct {
	log *zap.Logger

	mu      sync.Mutex
	subs    map[string][]*Subscription
	waiters map[string][]*waiter
	online  bool
}

func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:     log.With(zap.String("component", "dispatch")),
		subs:    make(map[string][]*Subscription),
		waiters: make(map[string][]*waiter),
	}
}

// SetOnline flips connection-gating for new waiters. The transport owner
// calls this on connect and disconnect.
func (d *Dispatcher) SetOnline(online bool) {
	d.mu.Lock()
	d.online = online
	d.mu.Unlock()
}

// Subscribe registers a durable handler for a command. Handlers for the
// same command run in registration order.
func (d *Dispatcher) Subscribe(command string, h Handler) *Subscription {
	sub := &Subscription{id: uuid.NewString(), command: command, handler: h}
	d.mu.Lock()
	d.subs[command] = append(d.subs[command], sub)
	d.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription. Removing twice is a no-op.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket := d.subs[sub.command]
	for i, s := range bucket {
		if s.id == sub.id {
			d.subs[sub.command] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(d.subs[sub.command]) == 0 {
		delete(d.subs, sub.command)
	}
}

// Waiter registers a one-shot waiter for the next packet matching the
// predicate. It fails with ErrNotConnected while the transport is down,
// so a caller cannot block forever on a response that can never arrive.
// Register the waiter before sending the request it answers.
func (d *Dispatcher) Waiter(command string, pred Predicate) (*PendingWait, error) {
	w := &waiter{
		id:   uuid.NewString(),
		pred: pred,
		ch:   make(chan outcome, 1),
	}
	d.mu.Lock()
	if !d.online {
		d.mu.Unlock()
		return nil, gameerr.ErrNotConnected
	}
	d.waiters[command] = append(d.waiters[command], w)
	d.mu.Unlock()
	metrics.WaitersActive.Inc()
	return &PendingWait{d: d, command: command, w: w}, nil
}

// WaitFor registers a waiter and blocks for the match.
func (d *Dispatcher) WaitFor(ctx context.Context, command string, pred Predicate, timeout time.Duration) (*protocol.Packet, error) {
	pw, err := d.Waiter(command, pred)
	if err != nil {
		return nil, err
	}
	return pw.Await(ctx, timeout)
}

// Dispatch delivers one packet: all subscribers in order, then the
// earliest-registered matching waiter. Only one waiter resolves per
// packet; the rest stay armed.
func (d *Dispatcher) Dispatch(pkt *protocol.Packet) {
	if pkt == nil {
		return
	}
	start := time.Now()
	metrics.PacketsTotal.WithLabelValues(string(pkt.Dialect), pkt.Command).Inc()

	d.mu.Lock()
	subs := append([]*Subscription(nil), d.subs[pkt.Command]...)
	candidates := append([]*waiter(nil), d.waiters[pkt.Command]...)
	d.mu.Unlock()

	for _, s := range subs {
		d.runHandler(s, pkt)
	}

	// Predicates are evaluated outside the dispatcher lock; the done
	// flag on each waiter arbitrates against a concurrent Cancel.
	for _, w := range candidates {
		if !d.match(w, pkt) {
			continue
		}
		if w.resolve(pkt) {
			d.remove(pkt.Command, w)
			metrics.WaitersActive.Dec()
			break
		}
	}

	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) runHandler(s *Subscription, pkt *protocol.Packet) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("subscriber panicked",
				zap.String("command", pkt.Command),
				zap.Any("panic", r))
		}
	}()
	s.handler(pkt)
}

func (d *Dispatcher) match(w *waiter, pkt *protocol.Packet) (ok bool) {
	if w.pred == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("waiter predicate panicked",
				zap.String("command", pkt.Command),
				zap.Any("panic", r))
			ok = false
		}
	}()
	return w.pred(pkt)
}

func (d *Dispatcher) remove(command string, w *waiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket := d.waiters[command]
	for i, cand := range bucket {
		if cand.id == w.id {
			d.waiters[command] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(d.waiters[command]) == 0 {
		delete(d.waiters, command)
	}
}

// CancelAll fails every pending waiter with err and clears the table.
// Called on disconnect so blocked callers unwind promptly.
func (d *Dispatcher) CancelAll(err error) {
	d.mu.Lock()
	var all []*waiter
	for _, bucket := range d.waiters {
		all = append(all, bucket...)
	}
	d.waiters = make(map[string][]*waiter)
	d.mu.Unlock()
	for _, w := range all {
		if w.fail(err) {
			metrics.WaitersActive.Dec()
		}
	}
}
