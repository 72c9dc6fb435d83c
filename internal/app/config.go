package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath   string // experiment description, yaml
	PipelinePath string // pipeline definition, hcl
	PipelineName string // pipeline block to run, empty selects the only one

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config eagerly.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
