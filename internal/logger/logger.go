// Package logger builds the zap logger and the zap-backed lending observer.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development logger outside production and a JSON logger in production
func New(environment string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// MustNew is New for commands that cannot continue without a logger
func MustNew(environment string) *zap.Logger {
	logger, err := New(environment)
	if nil != err {
		panic(err)
	}
	return logger
}
