// Package logger provides structured logging for Herald
package logger

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// contextKey is the type for context keys
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ChannelKey is the context key for the channel identity
	ChannelKey contextKey = "channel"
	// MessageIDKey is the context key for the message being processed
	MessageIDKey contextKey = "message_id"
	// TenantKey is the context key for the tenant a derived schema belongs to
	TenantKey contextKey = "tenant"
)

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
	File        *FileConfig
}

// FileConfig enables an additional rotating file sink
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init initializes the global logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		globalLogger, err = newLogger(cfg)
	})
	return err
}

// newLogger creates a new zap logger
func newLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	if cfg.File == nil {
		zapCfg := zap.Config{
			Level:            zap.NewAtomicLevelAt(level),
			Development:      cfg.Development,
			Encoding:         cfg.Encoding,
			EncoderConfig:    encoderConfig,
			OutputPaths:      outputPaths,
			ErrorOutputPaths: []string{"stderr"},
		}

		logger, err := zapCfg.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}

		if cfg.Development {
			logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
		}

		return logger, nil
	}

	// With a file sink configured, tee the console core with a rotating
	// file core. The file always receives JSON so rotation tooling can
	// parse it regardless of the console encoding.
	var consoleEncoder zapcore.Encoder
	if cfg.Encoding == "console" {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	sink, _, err := zap.Open(outputPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to open log outputs: %w", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, sink, level),
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(newRotator(cfg.File)),
			level,
		),
	)

	logger := zap.New(core, zap.AddCaller())
	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// newRotator builds the lumberjack writer with sane rotation defaults
func newRotator(fc *FileConfig) *lumberjack.Logger {
	rotator := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}
	if rotator.MaxSize == 0 {
		rotator.MaxSize = 100
	}
	if rotator.MaxBackups == 0 {
		rotator.MaxBackups = 3
	}
	if rotator.MaxAge == 0 {
		rotator.MaxAge = 28
	}
	return rotator
}

// Get returns the global logger
func Get() *zap.Logger {
	if globalLogger == nil {
		// Create a default logger if not initialized
		cfg := Config{
			Level:       "info",
			Development: false,
			Encoding:    "json",
		}
		if err := Init(cfg); err != nil {
			// Fallback to basic logger
			logger, _ := zap.NewProduction()
			globalLogger = logger
		}
	}
	return globalLogger
}

// WithContext returns a logger with context values
func WithContext(ctx context.Context) *zap.Logger {
	logger := Get()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		logger = logger.With(zap.String("request_id", requestID))
	}

	if channel, ok := ctx.Value(ChannelKey).(string); ok {
		logger = logger.With(zap.String("channel", channel))
	}

	if messageID, ok := ctx.Value(MessageIDKey).(string); ok {
		logger = logger.With(zap.String("message_id", messageID))
	}

	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		logger = logger.With(zap.String("tenant", tenant))
	}

	return logger
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
	os.Exit(1)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
