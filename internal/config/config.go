// Package config handles application configuration and setup
package config

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/options"
)

// CreateLogger creates a logger with the level selected by the program flags.
// Debug takes precedence over quiet mode.
func CreateLogger(flags options.Flags) *log.Logger {
	cfg := log.DefaultConfig()
	switch {
	case flags.Debug:
		cfg.Level = log.DebugLevel
	case flags.Quiet:
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
