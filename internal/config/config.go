// Package config holds environment-driven settings for the command line
// tool. Every option can also be set by flag; flags win.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is populated from ONNX2IR_* environment variables.
type Config struct {
	// Verbosity controls log output: 0 errors only, 1 adds a model
	// summary, 2 adds per-node translation logging.
	Verbosity int `envconfig:"VERBOSITY" default:"0"`

	// Strict makes the check command exit nonzero when any node is
	// untranslatable instead of just reporting the partition.
	Strict bool `envconfig:"STRICT" default:"false"`
}

// FromEnv reads configuration from the environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("onnx2ir", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if cfg.Verbosity < 0 {
		return nil, fmt.Errorf("verbosity must not be negative, got %d", cfg.Verbosity)
	}
	return &cfg, nil
}
