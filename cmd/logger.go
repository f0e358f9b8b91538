package cmd

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	logFormatProduction  = "production"
	logFormatDevelopment = "development"
)

// newLogger builds the app logger. An empty level means info and an
// empty format means production.
func newLogger(level, format string) (*zap.Logger, error) {
	atom := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		var err error
		if atom, err = zap.ParseAtomicLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	var config zap.Config
	switch format {
	case "", logFormatProduction:
		config = zap.NewProductionConfig()
	case logFormatDevelopment:
		config = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	config.Level = atom
	config.InitialFields = map[string]any{"app": appName}

	return config.Build()
}
