// Package logging configures zerolog for the locksmith CLI and provides
// component-scoped sub-loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with locksmith-specific configuration.
type Logger struct {
	*zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string
	Format string // "json" or "console"
}

// New creates a new configured logger.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stderr
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: &logger}
}

// Default returns a logger with default configuration.
func Default() *Logger {
	return New(Config{Level: "info", Format: "console"})
}

// WithComponent returns a new logger with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	logger := l.Logger.With().Str("component", component).Logger()
	return &Logger{Logger: &logger}
}

// WithService returns a new logger with service context.
func (l *Logger) WithService(service, image string) *Logger {
	logger := l.Logger.With().
		Str("service", service).
		Str("image", image).
		Logger()
	return &Logger{Logger: &logger}
}

// Init initializes the global logger.
func Init(cfg Config) {
	logger := New(cfg)
	log.Logger = *logger.Logger
}
