package idle

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hhpc/hhpc/internal/grabber"
	"github.com/hhpc/hhpc/internal/logger"
	"github.com/hhpc/hhpc/internal/waiter"
	"github.com/hhpc/hhpc/pkg/pointer"
)

// State of the idle loop
type State int

const (
	Grabbing State = iota
	Waiting
	Draining
	Cooling
	Stopped
)

func (s State) String() string {
	switch s {
	case Grabbing:
		return "grabbing"
	case Waiting:
		return "waiting"
	case Draining:
		return "draining"
	case Cooling:
		return "cooling"
	}
	return "stopped"
}

// Stats counts what the loop has done so far
type Stats struct {
	Grabs    int
	Wakes    int
	Timeouts int
	Drained  int
	Cycles   int
}

// Loop hides the pointer while it is idle: it holds a synchronous grab with an
// invisible cursor and gives the pointer back on the first motion.
type Loop struct {
	grabber  *grabber.Grabber
	waiter   *waiter.Waiter
	dev      pointer.Device
	win      pointer.Window
	timeout  time.Duration
	cooldown time.Duration
	log      *log.Logger
	observe  func(from, to State)

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	state   State
	stats   Stats
	err     error
}

type Option func(*Loop)

// WithTimeout sets how long a wait lasts before the loop re-evaluates cancellation
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithCooldown sets the pause after motion before the pointer is grabbed again.
// It defaults to the timeout.
func WithCooldown(d time.Duration) Option {
	return func(l *Loop) { l.cooldown = d }
}

func WithLogger(lg *log.Logger) Option {
	return func(l *Loop) { l.log = lg }
}

// WithObserver registers fn to be called on the loop goroutine for every transition
func WithObserver(fn func(from, to State)) Option {
	return func(l *Loop) { l.observe = fn }
}

func New(g *grabber.Grabber, w *waiter.Waiter, dev pointer.Device, win pointer.Window, opts ...Option) *Loop {
	l := &Loop{
		grabber:  g,
		waiter:   w,
		dev:      dev,
		win:      win,
		timeout:  time.Second,
		cooldown: -1,
		log:      logger.Discard(),
		state:    Stopped,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cooldown < 0 {
		l.cooldown = l.timeout
	}
	return l
}

// Run drives the state machine until ctx is done, Stop is called or a fatal
// error occurs. Cancellation returns nil. On return no grab is held.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("idle loop is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.stop = cancel
	l.state = Grabbing
	l.err = nil
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	var handle *grabber.Handle
	defer func() { l.release(handle) }()

	l.log.Debug("starting idle loop", "window", l.win, "timeout", l.timeout, "cooldown", l.cooldown)

	state := Grabbing
	for state != Stopped {
		var next State
		switch state {
		case Grabbing:
			next = l.grab(ctx, &handle)
		case Waiting:
			next = l.wait(ctx)
		case Draining:
			next = l.drain(&handle)
		case Cooling:
			next = l.cool(ctx)
		}
		if next == Stopped {
			l.release(handle)
		}
		l.transition(state, next)
		state = next
	}

	return l.Err()
}

func (l *Loop) grab(ctx context.Context, handle **grabber.Handle) State {
	if ctx.Err() != nil {
		return Stopped
	}
	if *handle != nil && (*handle).Held() {
		l.log.Debug("pointer still grabbed")
		return Waiting
	}

	h, err := l.grabber.Acquire(ctx, l.win)
	if err != nil {
		if !errors.Is(err, grabber.ErrCancelled) {
			l.log.Error("could not grab pointer, exiting", "err", err)
			l.fail(err)
		}
		return Stopped
	}
	*handle = h
	l.count(func(s *Stats) { s.Grabs++ })
	return Waiting
}

func (l *Loop) wait(ctx context.Context) State {
	res := l.waiter.Wait(ctx, l.timeout)
	switch res.Outcome {
	case waiter.EventReady:
		l.log.Debug("event received, ungrabbing and sleeping", "kind", res.Event.Kind)
		l.count(func(s *Stats) { s.Wakes++ })
		return Draining
	case waiter.TimedOut:
		l.log.Debug("timeout")
		l.count(func(s *Stats) { s.Timeouts++ })
		return Grabbing
	case waiter.Interrupted:
		return Stopped
	}

	if ctx.Err() == nil {
		l.log.Error("error while waiting for pointer events", "err", res.Err)
		l.fail(res.Err)
	}
	return Stopped
}

func (l *Loop) drain(handle **grabber.Handle) State {
	if err := l.dev.AllowEvents(pointer.AllowReplayPointer); err != nil {
		l.log.Warn("could not replay pointer event", "err", err)
	}
	l.release(*handle)
	*handle = nil

	n := l.waiter.Drain()
	l.count(func(s *Stats) { s.Drained += n })
	return Cooling
}

func (l *Loop) cool(ctx context.Context) State {
	t := time.NewTimer(l.cooldown)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return Stopped
	case <-t.C:
		l.count(func(s *Stats) { s.Cycles++ })
		return Grabbing
	}
}

func (l *Loop) release(h *grabber.Handle) {
	if h == nil || !h.Held() {
		return
	}
	if err := h.Release(); err != nil {
		l.log.Warn("could not release pointer grab", "err", err)
	}
}

func (l *Loop) transition(from, to State) {
	l.mu.Lock()
	l.state = to
	l.mu.Unlock()

	l.log.Debug("state", "from", from, "to", to)
	if l.observe != nil {
		l.observe(from, to)
	}
}

func (l *Loop) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *Loop) count(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

// Stop cancels a running loop
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running && l.stop != nil {
		l.stop()
	}
}

func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// State returns the current state
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of the counters
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Err is the failure that stopped the last run, if any
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
