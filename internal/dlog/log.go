// Package dlog provides doclite's structured logging, adapted from the
// zerolog wrapper the rest of this codebase's logging conventions follow:
// a package-level logger initialized once via Init, with component-scoped
// child loggers handed out to each subsystem.
package dlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger. It is safe for concurrent use.
var Logger zerolog.Logger

// Level mirrors the supported severities.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func init() {
	// A usable default so library callers who never call Init still get
	// sensible output instead of a zero-value no-op logger.
	Init(Config{Level: WarnLevel})
}

// Init (re)configures the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the given subsystem name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
