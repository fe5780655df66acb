// Package logging wraps zap behind the small call-site shape the teacher's
// private kit/log package uses (logger.With/"component", logger.Info(msg, kv...)),
// so every daemon subsystem logs the same way without depending on an
// unavailable internal module.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger interface passed to every subsystem.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// Option configures New.
type Option func(*options)

type options struct {
	development bool
	level       zapcore.Level
}

// WithDevelopment enables human-readable console output instead of JSON.
func WithDevelopment() Option {
	return func(o *options) { o.development = true }
}

// WithLevel sets the minimum enabled level.
func WithLevel(lvl zapcore.Level) Option {
	return func(o *options) { o.level = lvl }
}

// New builds a Logger. Production mode emits JSON to stdout; development
// mode emits colorized console lines, matching the teacher's worker/server
// entrypoints (log.NewLogger(log.WithDevelopment())).
func New(opts ...Option) Logger {
	o := &options{level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(o)
	}

	var cfg zap.Config
	if o.development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(o.level)
	cfg.OutputPaths = []string{"stdout"}

	z, err := cfg.Build()
	if err != nil {
		// Logging must never be fatal to the daemon; report the failure
		// once on stderr and fall back to a no-op logger.
		z = zap.NewNop()
		_, _ = os.Stderr.WriteString("logging: falling back to noop logger: " + err.Error() + "\n")
	}
	return &zapLogger{sugar: z.Sugar()}
}

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...)}
}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}
