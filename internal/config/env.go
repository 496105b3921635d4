package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys shared by flags and HHPC_* environment variables
const (
	KeyIdle    = "idle"
	KeyVerbose = "verbose"
	KeyDisplay = "display"
	KeyPIDFile = "pid-file"

	envPrefix = "HHPC"
)

// Load builds the configuration from defaults, HHPC_* environment variables
// and flags, in increasing precedence. clamped reports that the requested idle
// timeout was below the minimum and was raised.
func Load(flags *pflag.FlagSet) (cfg *Config, clamped bool, err error) {
	cfg = Default()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyIdle, strconv.Itoa(int(cfg.Idle.Timeout.Seconds())))
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyDisplay, "")
	v.SetDefault(KeyPIDFile, "")

	if flags != nil {
		for _, key := range []string{KeyIdle, KeyVerbose, KeyDisplay, KeyPIDFile} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, false, errors.Wrapf(err, "failed to bind flag %s", key)
				}
			}
		}
	}

	raw := strings.TrimSpace(v.GetString(KeyIdle))
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false, errors.Errorf("idle timeout must be a whole number of seconds, got %q", raw)
	}
	if clamped, err = cfg.SetIdleTimeout(seconds); err != nil {
		return nil, false, err
	}

	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.Display.Name = v.GetString(KeyDisplay)
	cfg.Daemon.PIDFile = v.GetString(KeyPIDFile)

	return cfg, clamped, cfg.Validate()
}

// RegisterFlags adds the configuration flags to fs
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.IntP(KeyIdle, "i", int(def.Idle.Timeout.Seconds()), "idle timeout in seconds (minimum 1)")
	fs.BoolP(KeyVerbose, "v", false, "log every state transition to stderr")
	fs.StringP(KeyDisplay, "d", "", "X11 display to connect to (default $DISPLAY)")
	fs.String(KeyPIDFile, "", "write a PID file and refuse to start if another instance holds it")
}
