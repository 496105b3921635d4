package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

const prefix = "hhpc"

// New returns the process logger. Verbose enables debug output, which is where
// every state transition goes. LOG_LEVEL, when set, wins over verbose.
func New(w io.Writer, verbose bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	l := log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		ReportTimestamp: verbose,
	})

	l.SetLevel(log.WarnLevel)
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	if lvl, ok := levelFromEnv(); ok {
		l.SetLevel(lvl)
	}
	return l
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	l := log.New(io.Discard)
	l.SetLevel(log.FatalLevel)
	return l
}

func levelFromEnv() (log.Level, bool) {
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if raw == "" {
		return 0, false
	}
	lvl, err := log.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return 0, false
	}
	return lvl, true
}
