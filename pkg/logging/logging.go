// Package logging builds the zap loggers used by the server and the CLIs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level and sinks of a logger
type Config struct {
	Level       string
	Filename    string // JSON log file, rotated; empty disables file output
	Console     io.Writer
	NoCaller    bool
	Development bool
	MaxSize     int // megabytes
	MaxBackups  int
	MaxAge      int // days
}

// New builds a logger writing to the console and, when a filename is set,
// to a rotated JSON file
func New(cfg *Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
		}
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	core := zapcore.NewCore(getEncoder(cfg, false), zapcore.AddSync(console), level)

	if cfg.Filename != "" {
		fileCore := zapcore.NewCore(getEncoder(cfg, true), zapcore.AddSync(getLumberjackLogger(cfg)), level)
		core = zapcore.NewTee(core, fileCore)
	}

	opts := []zap.Option{zap.AddStacktrace(zap.DPanicLevel)}
	if !cfg.NoCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return zap.New(core, opts...), nil
}

// NewSugared is New returning the sugared form
func NewSugared(cfg *Config) (*zap.SugaredLogger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func getEncoder(cfg *Config, jsonFormat bool) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if jsonFormat {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getLumberjackLogger(cfg *Config) *lumberjack.Logger {
	// keep 10 backups if not set to avoid running out of disk space
	maxBackups := cfg.MaxBackups
	if maxBackups == 0 {
		maxBackups = 10
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: maxBackups,
		MaxAge:     cfg.MaxAge,
	}
}
