package logger

import (
	"os"
	"strings"

	"github.com/n42group/mailmerge/internal/helpers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "mailmerge"

var (
	// Log is the global logger instance. It stays nil until InitLogger runs;
	// the package helpers fall back to a no-op logger in that case.
	Log *zap.Logger

	nop = zap.NewNop()
)

// Options controls how the global logger is built.
type Options struct {
	Level string
	Stage string
	JSON  bool
	Color bool
}

// InitLogger builds the global logger for the given stage. Prod emits JSON,
// every other stage gets a colored console encoder. LOG_LEVEL picks the level.
func InitLogger(stage string) {
	InitLoggerWithOptions(Options{
		Level: envOr("LOG_LEVEL", "info"),
		Stage: stage,
		JSON:  stage == helpers.StageProd,
		Color: stage != helpers.StageProd,
	})
}

// InitLoggerWithOptions builds the global logger from explicit options.
func InitLoggerWithOptions(opts Options) {
	level := ParseLevel(opts.Level)

	var cfg zap.Config
	if opts.JSON {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.MessageKey = "message"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.InitialFields = map[string]interface{}{
			"service": serviceName,
			"stage":   opts.Stage,
		}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if opts.Color {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = opts.Stage == helpers.StageProd && level > zapcore.DebugLevel

	built, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	Log = built
}

// ParseLevel maps a LOG_LEVEL value onto a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the global logger or a no-op logger when none was initialised.
func L() *zap.Logger {
	if Log == nil {
		return nop
	}
	return Log
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Info logs a message at InfoLevel
func Info(msg string, fields ...zapcore.Field) {
	L().Info(msg, fields...)
}

// Error logs a message at ErrorLevel
func Error(msg string, fields ...zapcore.Field) {
	L().Error(msg, fields...)
}

// Debug logs a message at DebugLevel
func Debug(msg string, fields ...zapcore.Field) {
	L().Debug(msg, fields...)
}

// Warn logs a message at WarnLevel
func Warn(msg string, fields ...zapcore.Field) {
	L().Warn(msg, fields...)
}

// Fatal logs a message at FatalLevel and then calls os.Exit(1)
func Fatal(msg string, fields ...zapcore.Field) {
	L().Fatal(msg, fields...)
}

// With creates a child logger and adds structured context to it
func With(fields ...zapcore.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return L().Sync()
}
