package config

import (
	"fmt"
)

// Config is the unified configuration for the server and its reloader.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Reload        ReloadConfig        `json:"reload" yaml:"reload"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	AppName       string              `json:"app_name" yaml:"app_name"`
	AppFile       string              `json:"app_file" yaml:"app_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Reload:        DefaultReloadConfig(),
		Observability: DefaultObservabilityConfig(),
		AppName:       "app",
	}
}

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := c.Reload.Validate(); err != nil {
		return fmt.Errorf("reload config validation failed: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability config validation failed: %w", err)
	}
	if c.AppName == "" {
		return fmt.Errorf("app_name cannot be empty")
	}
	return nil
}
