package config

import (
	"maps"

	"github.com/infrablocks/concourse-aws-entrypoint/entrypoint"
	"github.com/infrablocks/concourse-aws-entrypoint/util/conf"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Entrypoint is the configuration of the web and worker commands
	Entrypoint entrypoint.Config `conf:",squash"`
}

// DefaultConfig returns the defaults of every config key.
func DefaultConfig() conf.DefaultConfig {
	defaults := conf.DefaultConfig{
		"log_level":  "info",
		"log_format": "production",
	}

	maps.Copy(defaults, conf.MergeDefaults("", entrypoint.DefaultConfig))
	maps.Copy(defaults, conf.MergeDefaults("health", entrypoint.DefaultHealthConfig))

	return defaults
}
