package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger interface for structured logging. Fields are alternating key/value pairs.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, err error, fields ...interface{})
	With(fields ...interface{}) Logger
}

// ZapLogger implements Logger on top of a sugared zap logger
type ZapLogger struct {
	l *zap.SugaredLogger
}

// New creates a zap-backed logger. format "json" selects the production
// encoder, anything else the console encoder.
func New(levelStr, format string) Logger {
	level := zapcore.InfoLevel
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewExample()
	}
	return &ZapLogger{l: l.Sugar()}
}

// NewZapAdapter wraps an existing *zap.Logger
func NewZapAdapter(l *zap.Logger) Logger {
	return &ZapLogger{l: l.Sugar()}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &ZapLogger{l: zap.NewNop().Sugar()}
}

// Info logs an info message
func (z *ZapLogger) Info(msg string, fields ...interface{}) {
	z.l.Infow(msg, fields...)
}

// Error logs an error message
func (z *ZapLogger) Error(msg string, err error, fields ...interface{}) {
	z.l.Errorw(msg, withError(err, fields)...)
}

// Warn logs a warning message
func (z *ZapLogger) Warn(msg string, fields ...interface{}) {
	z.l.Warnw(msg, fields...)
}

// Debug logs a debug message
func (z *ZapLogger) Debug(msg string, fields ...interface{}) {
	z.l.Debugw(msg, fields...)
}

// Fatal logs a fatal error and exits
func (z *ZapLogger) Fatal(msg string, err error, fields ...interface{}) {
	z.l.Fatalw(msg, withError(err, fields)...)
}

// With returns a child logger that always carries fields
func (z *ZapLogger) With(fields ...interface{}) Logger {
	return &ZapLogger{l: z.l.With(fields...)}
}

// Sync flushes buffered entries
func (z *ZapLogger) Sync() error {
	return z.l.Sync()
}

func withError(err error, fields []interface{}) []interface{} {
	if err == nil {
		return fields
	}
	out := make([]interface{}, 0, len(fields)+2)
	out = append(out, "error", err)
	return append(out, fields...)
}
