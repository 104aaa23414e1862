package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	console "github.com/phsym/console-slog"
)

// Logger is the structured logging interface every engine logs through,
// kept the same shape as the teacher's zmodem.Logger (Debug/Info/Error)
// so callers migrating off that package need no call-site changes, but
// backed by log/slog instead of a hand-rolled file writer.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
	With(attrs ...any) Logger
}

// NoopLogger discards everything, for callers with no logging needs.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any)  {}
func (NoopLogger) Info(string, ...any)   {}
func (NoopLogger) Error(string, ...any)  {}
func (n NoopLogger) With(...any) Logger  { return n }

// SlogLogger adapts log/slog to the Logger interface, grounded on
// arloliu-go-secs/logger/slog.go: a human-readable console handler when
// ENV=development, a JSON handler otherwise.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger builds the default ambient logger for this module. debug
// selects slog.LevelDebug instead of slog.LevelInfo, generalizing the
// Java source's compile-time DEBUG constant into a runtime switch.
func NewSlogLogger(debug bool) *SlogLogger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if os.Getenv("ENV") == "development" {
		handler = console.NewHandler(os.Stderr, &console.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}
	return &SlogLogger{logger: slog.New(handler)}
}

func (s *SlogLogger) Debug(format string, args ...any) { s.log(slog.LevelDebug, format, args...) }
func (s *SlogLogger) Info(format string, args ...any)  { s.log(slog.LevelInfo, format, args...) }
func (s *SlogLogger) Error(format string, args ...any) { s.log(slog.LevelError, format, args...) }

func (s *SlogLogger) With(attrs ...any) Logger {
	return &SlogLogger{logger: s.logger.With(attrs...)}
}

func (s *SlogLogger) log(level slog.Level, format string, args ...any) {
	if !s.logger.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), level, sprintf(format, args...), pcs[0])
	_ = s.logger.Handler().Handle(context.Background(), record)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
