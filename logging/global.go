package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls where and how verbosely the service logs.
type Options struct {
	Dir            string
	RetentionWeeks int
	MaxFileSize    int64
	Level          string
	// Console disables stdout output when false and Dir is set.
	Console bool
}

type LoggingService struct {
	Logger  *slog.Logger
	rotator *RotatingLogger
}

var DefaultLoggingService *LoggingService

// parseLogLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewLoggingService builds a logger that writes text to the console and JSON
// to weekly rotated files under opts.Dir.
func NewLoggingService(opts Options) (*LoggingService, error) {
	level := parseLogLevel(opts.Level)
	var handlers []slog.Handler

	if opts.Console || opts.Dir == "" {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	var rotator *RotatingLogger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", opts.Dir, err)
		}
		rotator = NewRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if _, err := rotator.cleanupOldLogs(); err != nil {
			fmt.Fprintf(os.Stderr, "initial log cleanup failed: %v\n", err)
		}
		rotator.startCleanup()
		handlers = append(handlers, slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level}))
	}

	var handler slog.Handler = &multiHandler{handlers: handlers}
	if len(handlers) == 1 {
		handler = handlers[0]
	}

	return &LoggingService{Logger: slog.New(handler), rotator: rotator}, nil
}

// NewDiscardService returns a service whose output is dropped. Tests use it.
func NewDiscardService() *LoggingService {
	return &LoggingService{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Close flushes and closes the rotating file, if any.
func (s *LoggingService) Close() error {
	if s == nil || s.rotator == nil {
		return nil
	}
	return s.rotator.Close()
}

// InitLogger initializes the global logger instance
func InitLogger(opts Options) error {
	svc, err := NewLoggingService(opts)
	if err != nil {
		return err
	}
	DefaultLoggingService = svc
	slog.SetDefault(svc.Logger)
	return nil
}

// Shutdown closes the global logger's file output.
func Shutdown() error {
	return DefaultLoggingService.Close()
}

// Logger returns the global logger, or a stderr logger before InitLogger.
func Logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return fallbackLogger
	}
	return DefaultLoggingService.Logger
}

var fallbackLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelDebug,
}))

// Package-level functions for direct access

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}
