// Package logger provides a centralized logging configuration for frouter
package logger

import (
	"os"
	"path/filepath"

	rerrors "github.com/frouter/frouter/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Global logger instance
var routerLogger *zap.Logger

// ErrorTypeKey is the field carrying the error category in the error log
const ErrorTypeKey = "error_type"

// LogConfig holds the logging configuration
type LogConfig struct {
	Level       string
	OutputPath  string
	ErrorPath   string // JSON error log; empty disables it
	MaxSize     int    // megabytes
	MaxBackups  int
	MaxAge      int // days
	Compress    bool
	Development bool
	EnableJSON  bool
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *LogConfig {
	home, _ := os.UserHomeDir()
	return &LogConfig{
		Level:       "info",
		OutputPath:  filepath.Join(home, ".frouter", "logs", "frouter.log"),
		ErrorPath:   filepath.Join(home, ".frouter", "logs", "error.log"),
		MaxSize:     100,
		MaxBackups:  5,
		MaxAge:      30,
		Compress:    true,
		Development: false,
		EnableJSON:  false,
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func rotating(cfg *LogConfig, path string) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// Build creates a logger from cfg without touching the global instance
func Build(cfg *LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := encoderConfig()

	var encoder zapcore.Encoder
	if cfg.Development && !cfg.EnableJSON {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else if cfg.EnableJSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	fileWriter, err := rotating(cfg, cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	writers := []zapcore.WriteSyncer{fileWriter}
	if cfg.Development {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), zap.NewAtomicLevelAt(level)),
	}

	// Errors additionally go to their own JSON file so they can be
	// inspected apart from routine activity.
	if cfg.ErrorPath != "" {
		errWriter, err := rotating(cfg, cfg.ErrorPath)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			errWriter,
			zap.NewAtomicLevelAt(zapcore.ErrorLevel),
		))
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.DPanicLevel),
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// Initialize sets up the global logger with the given configuration
func Initialize(cfg *LogConfig) error {
	l, err := Build(cfg)
	if err != nil {
		return err
	}

	routerLogger = l

	// Replace global logger
	zap.ReplaceGlobals(routerLogger)

	return nil
}

// Get returns the global logger instance
func Get() *zap.Logger {
	if routerLogger == nil {
		// Initialize with default config if not already initialized
		if err := Initialize(DefaultConfig()); err != nil {
			routerLogger = zap.NewNop()
		}
	}
	return routerLogger
}

// Sync flushes any buffered log entries
func Sync() error {
	if routerLogger != nil {
		return routerLogger.Sync()
	}
	return nil
}

// Report writes err to log at error level, labelled with its category.
func Report(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String(ErrorTypeKey, string(rerrors.TypeOf(err))),
		zap.Error(err),
	)
	log.Error(msg, fields...)
}

// WithBatchID returns log with a batch_id field
func WithBatchID(log *zap.Logger, batchID string) *zap.Logger {
	return log.With(zap.String("batch_id", batchID))
}
