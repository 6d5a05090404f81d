package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	"github.com/nmxmxh/empire-core/pkg/metrics"
)

type outcome struct {
	pkt *protocol.Packet
	err error
}

type waiter struct {
	id   string
	pred Predicate

	mu   sync.Mutex
	done bool
	ch   chan outcome // buffered, capacity 1
}

func (w *waiter) resolve(pkt *protocol.Packet) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	w.ch <- outcome{pkt: pkt}
	return true
}

func (w *waiter) fail(err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	w.ch <- outcome{err: err}
	return true
}

// PendingWait is an armed one-shot waiter. Exactly one of Await's
// outcomes consumes it; Cancel disarms it early.
type PendingWait struct {
	d       *Dispatcher
	command string
	w       *waiter
}

// Command returns the command the waiter is armed on.
func (p *PendingWait) Command() string { return p.command }

// Await blocks until the waiter resolves, the timeout elapses, or ctx is
// cancelled. A timeout of zero or less disarms the waiter and returns
// ErrTimeout immediately.
func (p *PendingWait) Await(ctx context.Context, timeout time.Duration) (*protocol.Packet, error) {
	if timeout <= 0 {
		p.Cancel()
		return nil, gameerr.ErrTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-p.w.ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.pkt, nil
	case <-timer.C:
		p.Cancel()
		// A resolve may have raced the timer; prefer the packet.
		select {
		case out := <-p.w.ch:
			if out.err == nil && out.pkt != nil {
				return out.pkt, nil
			}
		default:
		}
		return nil, gameerr.ErrTimeout
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel disarms the waiter so no future packet resolves it. Safe to
// call more than once and safe concurrently with Dispatch.
func (p *PendingWait) Cancel() {
	if p.w.fail(gameerr.ErrWaitCancelled) {
		p.d.remove(p.command, p.w)
		metrics.WaitersActive.Dec()
	}
}
