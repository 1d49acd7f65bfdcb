// SPDX-License-Identifier: MIT

// Package log wraps zerolog: one process-wide base logger carrying the
// service identity, component child loggers, and correlation fields
// (request, job, scene) propagated through context.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the one-time logger setup.
type Config struct {
	Level   string    // zerolog level name; empty falls back to $LOG_LEVEL, then info
	Output  io.Writer // defaults to os.Stdout
	Service string
	Version string
}

var (
	setup sync.Once
	base  zerolog.Logger
)

// Configure initialises the process logger. Only the first call takes
// effect; later calls, including the implicit one from WithComponent,
// are no-ops.
func Configure(cfg Config) {
	setup.Do(func() {
		zerolog.SetGlobalLevel(resolveLevel(cfg.Level))
		zerolog.TimeFieldFormat = time.RFC3339

		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}

		ctx := zerolog.New(out).With().Timestamp()
		if cfg.Service != "" {
			ctx = ctx.Str("service", cfg.Service)
		}
		if cfg.Version != "" {
			ctx = ctx.Str("version", cfg.Version)
		}
		base = ctx.Logger()
	})
}

func resolveLevel(name string) zerolog.Level {
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if name != "" {
		if lvl, err := zerolog.ParseLevel(name); err == nil {
			return lvl
		}
	}
	return zerolog.InfoLevel
}

// WithComponent returns a child logger tagged with the subsystem name.
func WithComponent(component string) zerolog.Logger {
	Configure(Config{})
	return base.With().Str(FieldComponent, component).Logger()
}
