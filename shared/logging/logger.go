package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with the printf-style helpers used across the
// services. Every entry carries the service name.
type Logger struct {
	serviceName string
	base        *zap.Logger
	sugar       *zap.SugaredLogger
}

// New creates a new logger for a service at info level.
func New(serviceName string) *Logger {
	return build(serviceName, false)
}

// NewDebug creates a logger that also emits debug entries.
func NewDebug(serviceName string) *Logger {
	return build(serviceName, true)
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{serviceName: "nop", base: base, sugar: base.Sugar()}
}

func build(serviceName string, debug bool) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	base, err := cfg.Build()
	if err != nil {
		// Config is static, so this only fails on a broken stderr.
		base = zap.NewNop()
	}
	base = base.With(zap.String("service", serviceName))

	return &Logger{
		serviceName: serviceName,
		base:        base,
		sugar:       base.Sugar(),
	}
}

// Zap exposes the structured logger for callers that log fields.
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// With returns a child logger carrying extra structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	base := l.base.With(fields...)
	return &Logger{serviceName: l.serviceName, base: base, sugar: base.Sugar()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugf(msg, args...)
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.sugar.Infof(msg, args...)
}

// Warn logs a warning
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnf(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.sugar.Errorf(msg, args...)
}

// Fatal logs a fatal error and exits
func (l *Logger) Fatal(err error) {
	l.sugar.Errorw("fatal", "error", err)
	_ = l.base.Sync()
	os.Exit(1)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.base.Sync()
}
