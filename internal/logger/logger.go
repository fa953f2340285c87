package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crudkit/internal/config"
)

// Build collects the pieces of a logger before Make assembles it.
type Build struct {
	writer io.Writer
	level  zerolog.Level
	format string
}

func New() *Build {
	return &Build{writer: os.Stdout, level: zerolog.InfoLevel, format: "json"}
}

// FromConfig applies the log section of the application config.
func (b *Build) FromConfig(cfg config.LogConfig) *Build {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && cfg.Level != "" {
		b.level = lvl
	}
	if cfg.Format != "" {
		b.format = cfg.Format
	}
	return b
}

func (b *Build) FromWriter(w io.Writer) *Build {
	b.writer = w
	return b
}

func (b *Build) Make() zerolog.Logger {
	w := b.writer
	if b.format == "console" {
		w = zerolog.ConsoleWriter{Out: b.writer, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(b.level).With().Timestamp().Logger()
}
