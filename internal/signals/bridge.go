// Package signals turns termination signals into one cancellation flag.
package signals

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// TerminationSignals is what Install registers when given no signals
var TerminationSignals = []os.Signal{unix.SIGINT, unix.SIGHUP, unix.SIGQUIT, unix.SIGTERM}

// Bridge owns the process cancellation flag. The flag is only ever set, never
// cleared; its context is cancelled at the same moment.
type Bridge struct {
	cancelled atomic.Bool
	last      atomic.Value

	ctx    context.Context
	cancel context.CancelFunc

	sigCh    chan os.Signal
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a bridge whose context derives from parent
func New(parent context.Context) *Bridge {
	ctx, cancel := context.WithCancel(parent)
	return &Bridge{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Install registers sigs, or TerminationSignals when none are given. Signals
// that cannot be caught are skipped and reported in the returned error; the
// remaining ones are registered regardless.
func (b *Bridge) Install(sigs ...os.Signal) error {
	if b.sigCh != nil {
		return errors.New("signal handlers already installed")
	}
	if len(sigs) == 0 {
		sigs = TerminationSignals
	}

	var accepted []os.Signal
	var rejected []string
	for _, s := range sigs {
		if !catchable(s) {
			rejected = append(rejected, signalName(s))
			continue
		}
		accepted = append(accepted, s)
	}

	if len(accepted) > 0 {
		b.sigCh = make(chan os.Signal, 1)
		signal.Notify(b.sigCh, accepted...)
		go b.forward()
	}

	if len(rejected) > 0 {
		return errors.Errorf("could not register %s", strings.Join(rejected, ", "))
	}
	return nil
}

// forward handles the first signal only; later ones get their default action
func (b *Bridge) forward() {
	select {
	case s := <-b.sigCh:
		signal.Stop(b.sigCh)
		b.last.Store(s)
		b.Cancel()
	case <-b.done:
	}
}

// IsCancelled reports whether a signal arrived or Cancel was called
func (b *Bridge) IsCancelled() bool {
	return b.cancelled.Load()
}

// Cancel sets the flag. Called for unrecoverable I/O failures too.
func (b *Bridge) Cancel() {
	b.cancelled.Store(true)
	b.cancel()
}

// Context is cancelled together with the flag
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Signal returns the signal that set the flag, or nil
func (b *Bridge) Signal() os.Signal {
	if s, ok := b.last.Load().(os.Signal); ok {
		return s
	}
	return nil
}

// Stop unregisters the handlers. The flag keeps its value.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.sigCh != nil {
			signal.Stop(b.sigCh)
		}
		close(b.done)
	})
}

func catchable(s os.Signal) bool {
	sig, ok := s.(syscall.Signal)
	if !ok || sig <= 0 {
		return false
	}
	return sig != unix.SIGKILL && sig != unix.SIGSTOP
}

func signalName(s os.Signal) string {
	if s == nil {
		return "<nil>"
	}
	if sig, ok := s.(syscall.Signal); ok {
		if name := unix.SignalName(sig); name != "" {
			return name
		}
	}
	return s.String()
}
