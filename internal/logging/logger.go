// Package logging provides the structured, per-category loggers: a
// generic adapter logger plus dedicated LLM/embedding/vector-store "wire"
// loggers, each correlation-aware and backed by log/slog, following a
// Logger/Field/F interface and a slog-backed adapter.
package logging

import (
	"context"
	"log/slog"
)

// Field is a structured key-value pair, kept identical to // shape so call sites read the same way.
type Field struct {
	Key string
	Value interface{}
}

// F is shorthand for constructing a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the structured logging interface every package logs through.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithCorrelation returns a derived Logger that shares this logger's
	// transports but tags every record with the given correlation id
	// (scalar or []string joined with ", " in pretty prints). The
	// correlation id is a property of a logger instance, not the package.
	WithCorrelation(id interface{}) Logger
}

// NoopLogger discards everything, a zero-overhead default.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...Field) {}
func (NoopLogger) Info(context.Context, string, ...Field) {}
func (NoopLogger) Warn(context.Context, string, ...Field) {}
func (NoopLogger) Error(context.Context, string, ...Field) {}
func (n NoopLogger) WithCorrelation(interface{}) Logger { return n }

// SlogLogger adapts log/slog.Logger to the Logger interface, plus
// correlation-id carrying and a category tag used to route records to
// the right on-disk file.
type SlogLogger struct {
	logger *slog.Logger
	category string
	correlation interface{}
}

// NewSlogLogger wraps an slog.Logger as a category-tagged Logger.
func NewSlogLogger(logger *slog.Logger, category string) *SlogLogger {
	return &SlogLogger{logger: logger, category: category}
}

func (s *SlogLogger) attrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields)*2+4)
	attrs = append(attrs, "category", s.category)
	if s.correlation != nil {
		attrs = append(attrs, "correlation", correlationString(s.correlation))
	}
	for _, f := range fields {
		attrs = append(attrs, f.Key, f.Value)
	}
	return attrs
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.logger.DebugContext(ctx, msg, s.attrs(fields)...)
}
func (s *SlogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.logger.InfoContext(ctx, msg, s.attrs(fields)...)
}
func (s *SlogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.logger.WarnContext(ctx, msg, s.attrs(fields)...)
}
func (s *SlogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.logger.ErrorContext(ctx, msg, s.attrs(fields)...)
}

// WithCorrelation returns a derived logger sharing the same handler but
// carrying its own correlation id, never mutating the receiver.
func (s *SlogLogger) WithCorrelation(id interface{}) Logger {
	return &SlogLogger{logger: s.logger, category: s.category, correlation: id}
}

// correlationString renders a scalar or slice correlation id, joining a
// slice with ", " for a readable pretty-print.
func correlationString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case []string:
		out := ""
		for i, s := range v {
			if i > 0 {
				out += ", "
			}
			out += s
		}
		return out
	default:
		return slog.AnyValue(v).String()
	}
}
