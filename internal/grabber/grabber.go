package grabber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hhpc/hhpc/internal/logger"
	"github.com/hhpc/hhpc/pkg/pointer"
)

// DefaultBackoff is the delay between grab attempts under contention
const DefaultBackoff = 500 * time.Millisecond

// ErrCancelled is returned when cancellation stops the retry loop
var ErrCancelled = errors.New("grab cancelled")

// Outcome is the class of a grab status
type Outcome int

const (
	Granted Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Retryable:
		return "retryable"
	}
	return "fatal"
}

// Classify maps a server grab status to its outcome class. Unknown statuses are fatal.
func Classify(status pointer.GrabStatus) Outcome {
	switch status {
	case pointer.GrabSuccess:
		return Granted
	case pointer.AlreadyGrabbed, pointer.Frozen:
		return Retryable
	}
	return Fatal
}

// GrabError reports a grab the server refused for good
type GrabError struct {
	Status pointer.GrabStatus
}

func (e *GrabError) Error() string {
	return fmt.Sprintf("pointer grab rejected: %s", e.Status)
}

// Stats counts grab activity
type Stats struct {
	Attempts int
	Retries  int
	Granted  int
}

// Grabber acquires exclusive ownership of the pointer
type Grabber struct {
	dev     pointer.Device
	mask    pointer.EventMask
	backoff time.Duration
	log     *log.Logger

	mu    sync.Mutex
	stats Stats
}

type Option func(*Grabber)

func WithBackoff(d time.Duration) Option {
	return func(g *Grabber) { g.backoff = d }
}

func WithMask(m pointer.EventMask) Option {
	return func(g *Grabber) { g.mask = m }
}

func WithLogger(l *log.Logger) Option {
	return func(g *Grabber) { g.log = l }
}

func New(dev pointer.Device, opts ...Option) *Grabber {
	g := &Grabber{
		dev:     dev,
		mask:    pointer.DefaultMask,
		backoff: DefaultBackoff,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire grabs the pointer on win with a fresh invisible cursor. Contention is
// retried every backoff until ctx is done; any other refusal returns a *GrabError
// on the spot. The cursor is freed on every failure path.
func (g *Grabber) Acquire(ctx context.Context, win pointer.Window) (*Handle, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	cursor, err := g.dev.CreateInvisibleCursor(win)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create invisible cursor")
	}

	fail := func(err error) (*Handle, error) {
		if ferr := g.dev.FreeCursor(cursor); ferr != nil {
			g.log.Warn("could not free invisible cursor", "err", ferr)
		}
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			return fail(ErrCancelled)
		}

		g.log.Debug("grabbing pointer", "window", win)
		g.count(func(s *Stats) { s.Attempts++ })

		status, err := g.dev.GrabPointer(win, cursor, g.mask)
		if err != nil {
			return fail(errors.Wrap(err, "grab request failed"))
		}

		switch Classify(status) {
		case Granted:
			g.log.Debug("successfully grabbed pointer")
			g.count(func(s *Stats) { s.Granted++ })
			return &Handle{dev: g.dev, cursor: cursor}, nil

		case Retryable:
			g.log.Debug("pointer unavailable, retrying after delay", "status", status, "delay", g.backoff)
			if !sleep(ctx, g.backoff) {
				return fail(ErrCancelled)
			}
			g.count(func(s *Stats) { s.Retries++ })

		default:
			return fail(&GrabError{Status: status})
		}
	}
}

// Stats returns a snapshot of the counters
func (g *Grabber) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Grabber) count(fn func(*Stats)) {
	g.mu.Lock()
	fn(&g.stats)
	g.mu.Unlock()
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
