package ctxlogger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the zerolog backend options.
type Config struct {
	Level   string    // "debug", "info", ...; defaults to info
	Format  string    // "json" (default) or "console"
	Output  io.Writer // defaults to os.Stderr
	Service string
}

type zerologLogger struct {
	zl zerolog.Logger
}

// New builds a zerolog backed Logger from cfg.
func New(cfg Config) Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = parsed
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "hlsfeed"
	}

	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
	return NewZerologLogger(zl)
}

// NewZerologLogger adapts an existing zerolog.Logger.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) WithComponent(name string) Logger {
	return &zerologLogger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *zerologLogger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *zerologLogger) Printf(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *zerologLogger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

func (l *zerologLogger) Fatalf(format string, args ...interface{}) {
	l.zl.Fatal().Msgf(format, args...)
}
