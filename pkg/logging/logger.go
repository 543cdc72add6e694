// Package logging provides the engine's global structured logger, a thin
// wrapper around zap. Components log through the package-level helpers so
// tests and embedders can swap the sink with a single Init call.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

func init() {
	logger = zap.NewNop()
}

// Config holds logger configuration.
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	OutputPath string // empty for stderr, or a file path
	Format     string // "json" or "console"
}

// Init replaces the global logger with one built from config. The default
// logger (before Init) discards everything, which keeps library use quiet.
func Init(config Config) error {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if config.Format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if config.OutputPath != "" {
		cfg.OutputPaths = []string{config.OutputPath}
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	loggerMu.Lock()
	old := logger
	logger = l
	loggerMu.Unlock()

	_ = old.Sync()
	return nil
}

// SetLogger installs a caller-supplied logger. Handy in tests.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func get() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Debug logs a debug message with structured fields.
func Debug(msg string, fields ...zap.Field) {
	get().Debug(msg, fields...)
}

// Info logs an info message with structured fields.
func Info(msg string, fields ...zap.Field) {
	get().Info(msg, fields...)
}

// Warn logs a warning with structured fields.
func Warn(msg string, fields ...zap.Field) {
	get().Warn(msg, fields...)
}

// Error logs an error with structured fields.
func Error(msg string, fields ...zap.Field) {
	get().Error(msg, fields...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return get().Sync()
}
