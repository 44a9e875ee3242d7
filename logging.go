package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger builds the run log: console encoded, on stderr, at --log-level.
func (config Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, Fatalf(ExitFlags, "invalid value for --log-level: '%s'", config.LogLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, withExit(ExitOther, err)
	}
	return logger.Named(AppName), nil
}
