package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the process logger set up by Init. Components should not read
	// it directly; they receive a child logger from their constructor.
	Logger = zerolog.Nop()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// ParseLevel converts a user supplied string to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case DebugLevel:
		return DebugLevel
	case WarnLevel, "warning":
		return WarnLevel
	case ErrorLevel:
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Init builds the process logger, stores it in Logger and returns it
func Init(cfg Config) zerolog.Logger {
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

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).Level(level).With().Timestamp().Logger()
	}
	return Logger
}

// WithComponent creates a child logger with component field
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// WithCycleID creates a child logger tagged with a scheduling cycle
func WithCycleID(base zerolog.Logger, cycleID string) zerolog.Logger {
	return base.With().Str("cycle_id", cycleID).Logger()
}

// WithNode creates a child logger tagged with a node name
func WithNode(base zerolog.Logger, node string) zerolog.Logger {
	return base.With().Str("node", node).Logger()
}
