package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/lerobot-preview/internal/env"
)

// Options configures the logger.
type Options struct {
	Level     slog.Level
	LogToFile bool
	LogFile   string
}

// Option mutates logger Options.
type Option func(*Options)

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) {
		o.Level = level
	}
}

// WithLogToFile enables mirroring log output to a rotated file.
func WithLogToFile(enabled bool) Option {
	return func(o *Options) {
		o.LogToFile = enabled
	}
}

// WithLogFile sets the log file path used when file logging is enabled.
func WithLogFile(path string) Option {
	return func(o *Options) {
		o.LogFile = path
	}
}

// New creates a slog.Logger appropriate for the environment: tinted console
// output in development, JSON in production, optionally mirrored to a
// size-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	options := Options{
		Level:   slog.LevelInfo,
		LogFile: "logs/lerobot-preview.log",
	}
	for _, opt := range opts {
		opt(&options)
	}

	console := io.Writer(os.Stderr)
	if options.LogToFile {
		console = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   options.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}

	if environment.IsProduction() {
		return slog.New(slog.NewJSONHandler(console, &slog.HandlerOptions{Level: options.Level}))
	}

	return slog.New(tint.NewHandler(console, &tint.Options{
		Level:      options.Level,
		TimeFormat: time.Kitchen,
		NoColor:    options.LogToFile || !isTerminal(os.Stderr),
	}))
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}
