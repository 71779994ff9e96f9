package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSugaredLogger creates a sugared logger based on the verbose flag.
// If verbose is true, it creates a development logger, otherwise a production logger.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create development logger: %w", err)
		}
		return l.Sugar(), nil
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create production logger: %w", err)
	}
	return l.Sugar(), nil
}

// NewServiceLogger is NewSugaredLogger with a "service" field attached to every entry.
func NewServiceLogger(service string, verbose bool) (*zap.SugaredLogger, error) {
	sugar, err := NewSugaredLogger(verbose)
	if err != nil {
		return nil, err
	}
	return sugar.With("service", service), nil
}
