package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning means another live process owns the PID file
var ErrAlreadyRunning = errors.New("another instance is already running")

// Daemon guards a PID file so only one instance holds the pointer
type Daemon struct {
	pidFile string
	owned   bool
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile}
}

// Acquire writes our PID unless a live process already holds the file
func (d *Daemon) Acquire() error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return errors.Wrap(err, "error checking instance status")
	}
	if running && pid != os.Getpid() {
		return errors.Wrapf(ErrAlreadyRunning, "PID %d", pid)
	}

	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return errors.Wrap(err, "failed to create PID file directory")
	}
	if err := os.WriteFile(d.pidFile, fmt.Appendf(nil, "%d\n", os.Getpid()), 0644); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}
	d.owned = true
	return nil
}

// Release removes the PID file if Acquire wrote it
func (d *Daemon) Release() error {
	if !d.owned {
		return nil
	}
	d.owned = false
	return d.removePID()
}

func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read PID file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrap(err, "invalid PID in file")
	}

	return pid, nil
}

// IsRunning reports whether the PID in the file is alive. A stale file is removed.
func (d *Daemon) IsRunning() (bool, int, error) {
	pid, err := d.ReadPID()
	if err != nil {
		return false, 0, err
	}

	if pid <= 0 {
		return false, 0, nil
	}

	if err := unix.Kill(pid, 0); err != nil && err != unix.EPERM {
		_ = d.removePID()
		return false, 0, nil
	}

	return true, pid, nil
}

func (d *Daemon) removePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove PID file")
	}
	return nil
}
