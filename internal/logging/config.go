package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "TTP_LOG_LEVEL"
	EnvLogTimestamp = "TTP_LOG_TIMESTAMP"
	EnvLogNoColor   = "TTP_LOG_NOCOLOR"
)

// Logger aliases the zerolog logger so callers stay on this package.
type Logger = zerolog.Logger

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type config struct {
	level     zerolog.Level
	timestamp bool
	noColor   bool
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global logger once. Later calls are no-ops, so the
// first profile to arrive wins; tests call ConfigureTests through
// testlog.Start at the top of each test.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)

		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.noColor,
		}
		ctx := zerolog.New(output).Level(cfg.level).With()
		if cfg.timestamp {
			ctx = ctx.Timestamp()
		}
		log.Logger = ctx.Logger()
	})
}

// Component returns the global logger tagged with a component name.
func Component(name string) Logger {
	return log.With().Str("component", name).Logger()
}

func defaultConfig(profile Profile) config {
	switch profile {
	case ProfileTest:
		return config{level: zerolog.DebugLevel, timestamp: false}
	default:
		return config{level: zerolog.InfoLevel, timestamp: true}
	}
}

func applyEnvOverrides(cfg *config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.noColor = v
	}
}

var levelNames = map[string]zerolog.Level{
	"trace":       zerolog.TraceLevel,
	"diagnostics": zerolog.TraceLevel,
	"debug":       zerolog.DebugLevel,
	"info":        zerolog.InfoLevel,
	"warn":        zerolog.WarnLevel,
	"warning":     zerolog.WarnLevel,
	"error":       zerolog.ErrorLevel,
	"disabled":    zerolog.Disabled,
	"disable":     zerolog.Disabled,
	"off":         zerolog.Disabled,
	"none":        zerolog.Disabled,
	"inactive":    zerolog.Disabled,
}

func parseLevel(raw string) (zerolog.Level, bool) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

func parseBool(raw string) (bool, bool) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return v, err == nil
}
