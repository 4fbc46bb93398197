// Package logger provides structured logging for the game server.
// Every table transition should be traceable through this.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with context.
type Logger struct {
	z *zap.Logger
}

// New creates a JSON logger at the given level ("debug", "info", "warn", "error").
func New(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Debug logs verbose diagnostics.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.z.Debug(msg, fields...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, fields...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, fields...)
}

// Event logs a game event for table oversight. An empty target is omitted.
func (l *Logger) Event(eventType, actorID, targetID string, turn int) {
	fields := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("actor", actorID),
		zap.Int("turn", turn),
	}
	if targetID != "" {
		fields = append(fields, zap.String("target", targetID))
	}
	l.z.Info("event", fields...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
