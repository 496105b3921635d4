package waiter

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hhpc/hhpc/internal/logger"
	"github.com/hhpc/hhpc/pkg/pointer"
)

// ErrClosed means the event source ended
var ErrClosed = errors.New("event source closed")

// Outcome is how a wait ended
type Outcome int

const (
	EventReady Outcome = iota
	TimedOut
	Interrupted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case EventReady:
		return "event-ready"
	case TimedOut:
		return "timed-out"
	case Interrupted:
		return "interrupted"
	}
	return "failed"
}

// Result carries the outcome, the waking event and, for Failed, the cause
type Result struct {
	Outcome Outcome
	Event   pointer.Event
	Err     error
}

// Waiter blocks until the grabbed pointer reports an event or a timeout passes
type Waiter struct {
	dev pointer.Device
	log *log.Logger
}

type Option func(*Waiter)

func WithLogger(l *log.Logger) Option {
	return func(w *Waiter) { w.log = l }
}

func New(dev pointer.Device, opts ...Option) *Waiter {
	w := &Waiter{dev: dev, log: logger.Discard()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait unfreezes the synchronous grab, makes sure the server has seen that,
// then blocks for an event, the timeout or ctx. A non-positive timeout waits
// without limit.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) Result {
	if err := w.dev.AllowEvents(pointer.AllowSyncPointer); err != nil {
		return Result{Outcome: Failed, Err: errors.Wrap(err, "failed to allow pointer events")}
	}
	if err := w.dev.Sync(); err != nil {
		return Result{Outcome: Failed, Err: errors.Wrap(err, "failed to sync with server")}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-ctx.Done():
		return Result{Outcome: Interrupted}
	case <-expired:
		return Result{Outcome: TimedOut}
	case ev, ok := <-w.dev.Events():
		if !ok {
			return Result{Outcome: Failed, Err: ErrClosed}
		}
		if ev.Err != nil {
			return Result{Outcome: Failed, Event: ev, Err: errors.Wrap(ev.Err, "server reported an error")}
		}
		return Result{Outcome: EventReady, Event: ev}
	}
}

// Drain consumes events that are already queued without blocking and returns
// how many it read.
func (w *Waiter) Drain() int {
	n := 0
	for {
		select {
		case ev, ok := <-w.dev.Events():
			if !ok {
				return n
			}
			n++
			if ev.Err != nil {
				w.log.Warn("discarding queued server error", "err", ev.Err)
				continue
			}
			w.log.Debug("draining event", "kind", ev.Kind)
		default:
			return n
		}
	}
}
