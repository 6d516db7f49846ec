package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads Settings from the process environment, applying the
// env-default tags for anything left unset.
func Load() (*Settings, error) {
	var cfg Settings
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validate performs basic validation on the configuration
func validate(cfg *Settings) error {
	if cfg.Connectors < 1 {
		return fmt.Errorf("connectors must be at least 1, got %d", cfg.Connectors)
	}

	if cfg.QuickStart && (cfg.QuickStartConnector < 1 || cfg.QuickStartConnector > cfg.Connectors) {
		return fmt.Errorf("quick_start_connector %d out of range [1,%d]", cfg.QuickStartConnector, cfg.Connectors)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}
