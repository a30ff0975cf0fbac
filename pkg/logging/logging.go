// Package logging builds the process ectologger on top of zap
package logging

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
)

// Config controls the process logger
type Config struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `env:"LOG_PRETTY" env-default:"false"`
}

// New creates an ectologger whose messages are written by a zap logger.
// It returns the zap logger too so callers can flush it on shutdown.
func New(cfg Config) (ectologger.Logger, *zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	sink, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return NewWithZap(sink), sink, nil
}

// NewWithZap adapts an existing zap logger
func NewWithZap(sink *zap.Logger) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		sink.Info("log", zap.Any("entry", msg))
	})
}

// Discard returns a logger that drops every message
func Discard() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
