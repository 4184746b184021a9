package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables rotated file output. Empty means stderr.
	File string
	JSON bool
}

type Logger struct {
	*slog.Logger
	Close func() error
	Path  string
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func New(opts Options) (Logger, error) {
	level := ParseLevel(opts.Level)
	if strings.TrimSpace(opts.File) == "" {
		return Logger{Logger: newLogger(os.Stderr, level, opts.JSON), Close: func() error { return nil }}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return Logger{Logger: Nop(), Close: func() error { return nil }}, err
	}
	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	return Logger{
		Logger: newLogger(w, level, opts.JSON),
		Close:  w.Close,
		Path:   opts.File,
	}, nil
}

func newLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to at most n bytes for log attributes.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
