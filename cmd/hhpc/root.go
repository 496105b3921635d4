package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/jezek/xgb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hhpc/hhpc/internal/config"
	"github.com/hhpc/hhpc/internal/daemon"
	"github.com/hhpc/hhpc/internal/grabber"
	"github.com/hhpc/hhpc/internal/idle"
	"github.com/hhpc/hhpc/internal/logger"
	"github.com/hhpc/hhpc/internal/signals"
	"github.com/hhpc/hhpc/internal/waiter"
	"github.com/hhpc/hhpc/pkg/integrations/x11"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitNoDisplay = 2
)

// usageError marks a bad command line
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// loggedError is a failure the idle loop already reported through the logger
type loggedError struct {
	err error
}

func (e loggedError) Error() string { return e.err.Error() }
func (e loggedError) Unwrap() error { return e.err }

func newRootCmd(stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName + " [-i seconds] [-v]",
		Short: "Hide the mouse pointer while it is idle",
		Long: `hhpc hides the X11 mouse pointer after it has been idle and brings it
back on the first motion. It holds a synchronous pointer grab with an invisible
cursor and replays the waking event, so other clients still see it.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, clamped, err := config.Load(cmd.Flags())
			if err != nil {
				return usageError{err}
			}
			lg := logger.New(stderr, cfg.Verbose)
			if clamped {
				lg.Warn("idle timeout below minimum, using minimum", "timeout", cfg.Idle.Timeout)
			}
			return run(cmd.Context(), cfg, lg)
		},
	}

	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError{err}
	})
	config.RegisterFlags(cmd.Flags())

	return cmd
}

// execute runs the command line and maps the outcome to an exit code
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := newRootCmd(stderr)
	cmd.SetArgs(args)

	return report(stderr, cmd, cmd.ExecuteContext(ctx))
}

func report(stderr io.Writer, cmd *cobra.Command, err error) int {
	if err == nil {
		return exitOK
	}

	var lerr loggedError
	if errors.As(err, &lerr) {
		return exitFailure
	}

	fmt.Fprintf(stderr, "%s: %v\n", appName, err)

	var uerr usageError
	switch {
	case errors.As(err, &uerr):
		fmt.Fprint(stderr, cmd.UsageString())
		return exitFailure
	case errors.Is(err, x11.ErrNoDisplay):
		return exitNoDisplay
	}
	return exitFailure
}

func run(ctx context.Context, cfg *config.Config, lg *log.Logger) error {
	lg.Debug(cfg.String())
	xgb.Logger = lg.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel})

	if cfg.Daemon.PIDFile != "" {
		dm := daemon.New(cfg.Daemon.PIDFile)
		if err := dm.Acquire(); err != nil {
			return err
		}
		defer func() {
			if err := dm.Release(); err != nil {
				lg.Warn("could not remove PID file", "err", err)
			}
		}()
	}

	session, err := x11.Connect(cfg.Display.Name)
	if err != nil {
		return err
	}
	defer session.Close()

	lg.Debug("got root window", "screen", session.Screen(), "root", fmt.Sprintf("0x%x", session.Root()))

	bridge := signals.New(ctx)
	defer bridge.Stop()
	if err := bridge.Install(); err != nil {
		lg.Warn("could not register signals, program will not exit cleanly", "err", err)
	}

	g := grabber.New(session, grabber.WithLogger(lg))
	w := waiter.New(session, waiter.WithLogger(lg))
	loop := idle.New(g, w, session, session.Root(),
		idle.WithTimeout(cfg.Idle.Timeout),
		idle.WithLogger(lg),
	)

	err = settle(bridge, loop.Run(bridge.Context()))
	if s := bridge.Signal(); s != nil {
		lg.Debug("received signal, shutting down", "signal", s)
	}

	stats := loop.Stats()
	gs := g.Stats()
	lg.Debug("idle loop stopped",
		"grabs", stats.Grabs, "wakes", stats.Wakes, "timeouts", stats.Timeouts,
		"drained", stats.Drained, "retries", gs.Retries, "cancelled", bridge.IsCancelled())

	return err
}

// settle raises the cancellation flag after a fatal loop error and marks the
// error as already logged
func settle(bridge *signals.Bridge, err error) error {
	if err == nil {
		return nil
	}
	bridge.Cancel()
	return loggedError{err}
}
