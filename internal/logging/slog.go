package logging

import (
	"context"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to the Logger interface. Both binaries
// construct one over a JSON handler on stdout; tests usually wrap
// slog.DiscardHandler.
type SlogLogger struct {
	l *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

// With returns a child logger carrying the extra attributes, typically
// a "module" tag identifying the subsystem.
func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
