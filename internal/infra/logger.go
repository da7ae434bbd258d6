package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept the service logger
// without importing zerolog themselves.
type Logger = zerolog.Logger

// NewLogger writes to stdout. See NewLoggerTo.
func NewLogger(cfg *Config) zerolog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo builds the service logger on out. Development gets a console
// writer at debug level; other environments get JSON at info. A valid
// LOG_LEVEL overrides either default.
func NewLoggerTo(out io.Writer, cfg *Config) zerolog.Logger {
	dev := cfg.AppEnv == "development"
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}

	if dev {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "clipforge").
		Str("env", cfg.AppEnv).
		Logger()
}
