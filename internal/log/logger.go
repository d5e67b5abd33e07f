// Package log configures the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/buildinfo"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // "debug", "info", ...; empty keeps info
	Format  string    // "json" (default) or "console"
	Output  io.Writer // defaults to os.Stdout
	Service string    // attached to every entry, defaults to "stream-dl"
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global logger exactly once. Later calls are no-ops.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}
		if cfg.Format == "console" {
			writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
		}

		service := cfg.Service
		if service == "" {
			service = "stream-dl"
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Str("version", buildinfo.Version).
			Logger()
	})
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}
