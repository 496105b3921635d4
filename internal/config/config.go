package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// Idle configuration
	Idle IdleConfig

	// Display configuration
	Display DisplayConfig

	// Daemon configuration
	Daemon DaemonConfig

	Verbose bool // Echo every state transition
}

// IdleConfig holds idle detection behavior
type IdleConfig struct {
	Timeout    time.Duration // Wait before re-checking, and cooldown after motion
	MinTimeout time.Duration // Anything lower is clamped to this
}

// DisplayConfig names the X server to talk to
type DisplayConfig struct {
	Name string // Empty means $DISPLAY
}

// DaemonConfig holds process management configuration
type DaemonConfig struct {
	PIDFile string // Empty disables the single-instance guard
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Idle: IdleConfig{
			Timeout:    1 * time.Second,
			MinTimeout: 1 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Idle.MinTimeout <= 0 {
		return errors.New("minimum idle timeout must be positive")
	}
	if c.Idle.Timeout < c.Idle.MinTimeout {
		return fmt.Errorf("idle timeout (%v) cannot be less than minimum (%v)",
			c.Idle.Timeout, c.Idle.MinTimeout)
	}
	return nil
}

// SetIdleTimeout sets the timeout from a number of seconds. Negative values are
// rejected; values below the minimum, zero included, are raised to it and
// clamped is true.
func (c *Config) SetIdleTimeout(seconds int) (clamped bool, err error) {
	if seconds < 0 {
		return false, fmt.Errorf("idle timeout cannot be negative, got %d", seconds)
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout < c.Idle.MinTimeout {
		c.Idle.Timeout = c.Idle.MinTimeout
		return true, nil
	}
	c.Idle.Timeout = timeout
	return false, nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	display := c.Display.Name
	if display == "" {
		display = "$DISPLAY"
	}
	pidFile := c.Daemon.PIDFile
	if pidFile == "" {
		pidFile = "(none)"
	}
	return fmt.Sprintf(`Configuration:
  Idle:
    Timeout: %v
    Min Timeout: %v
  Display: %s
  PID File: %s
  Verbose: %v`,
		c.Idle.Timeout,
		c.Idle.MinTimeout,
		display,
		pidFile,
		c.Verbose,
	)
}
