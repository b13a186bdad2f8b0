package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/leslieo2/go-app-reload/internal/constants"
)

// LoadConfig loads configuration with precedence:
// 1. Explicitly set CLI flags (highest priority)
// 2. Environment variables
// 3. Configuration file values
// 4. Default configuration values (lowest priority)
func LoadConfig(configFile string, flagSet *pflag.FlagSet, cliFlags *CLIFlags) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	loadFromEnv(config)

	if flagSet != nil && cliFlags != nil {
		overrideWithCLI(config, flagSet, cliFlags)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// CLIFlags carries flag values so the loader never touches the flag
// package's globals directly.
type CLIFlags struct {
	Host            *string
	Port            *string
	MetricsPort     *string
	AppFile         *string
	AppName         *string
	ReadTimeout     *time.Duration
	WriteTimeout    *time.Duration
	IdleTimeout     *time.Duration
	ShutdownTimeout *time.Duration
	ReloadEnabled   *bool
	ReloadMode      *string
	ReloadCooldown  *time.Duration
	ReloadDebounce  *time.Duration
	LogLevel        *string
	LogFormat       *string
	TracingEnabled  *bool
}

func loadFromFile(filePath string) (*Config, error) {
	if !filepath.IsAbs(filePath) {
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", filePath, err)
		}
		filePath = absPath
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	// Unmarshal over the defaults: keys absent from the file keep their
	// default values, and explicitly written values win even when they
	// equal a type's zero value (reload.enabled: false, empty host).
	config := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	return config, nil
}

func loadFromEnv(config *Config) {
	if val := os.Getenv(constants.EnvHost); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv(constants.EnvPort); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv(constants.EnvMetricsPort); val != "" {
		config.Server.MetricsPort = val
	}
	if val := os.Getenv(constants.EnvReadTimeout); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Server.ReadTimeout = duration
		}
	}
	if val := os.Getenv(constants.EnvWriteTimeout); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Server.WriteTimeout = duration
		}
	}
	if val := os.Getenv(constants.EnvIdleTimeout); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Server.IdleTimeout = duration
		}
	}
	if val := os.Getenv(constants.EnvShutdownTimeout); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Server.ShutdownTimeout = duration
		}
	}
	if val := os.Getenv(constants.EnvAppFile); val != "" {
		config.AppFile = val
	}
	if val := os.Getenv(constants.EnvAppName); val != "" {
		config.AppName = val
	}
	if val := os.Getenv(constants.EnvReloadEnabled); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Reload.Enabled = enabled
		}
	}
	if val := os.Getenv(constants.EnvReloadMode); val != "" {
		config.Reload.Mode = val
	}
	if val := os.Getenv(constants.EnvReloadCooldown); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Reload.Cooldown = duration
		}
	}
	if val := os.Getenv(constants.EnvReloadDebounce); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Reload.Debounce = duration
		}
	}
	if val := os.Getenv(constants.EnvLogLevel); val != "" {
		config.Observability.Logging.Level = val
	}
	if val := os.Getenv(constants.EnvLogFormat); val != "" {
		config.Observability.Logging.Format = val
	}
	if val := os.Getenv(constants.EnvTracingEnabled); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Observability.Tracing.Enabled = enabled
		}
	}
}

// overrideWithCLI applies flags the user explicitly set.
func overrideWithCLI(config *Config, flagSet *pflag.FlagSet, flags *CLIFlags) {
	if flags.Host != nil && flagSet.Changed("host") {
		config.Server.Host = *flags.Host
	}
	if flags.Port != nil && flagSet.Changed("port") {
		config.Server.Port = *flags.Port
	}
	if flags.MetricsPort != nil && flagSet.Changed("metrics-port") {
		config.Server.MetricsPort = *flags.MetricsPort
	}
	if flags.AppFile != nil && flagSet.Changed("app-file") {
		config.AppFile = *flags.AppFile
	}
	if flags.AppName != nil && flagSet.Changed("app-name") {
		config.AppName = *flags.AppName
	}
	if flags.ReadTimeout != nil && flagSet.Changed("read-timeout") {
		config.Server.ReadTimeout = *flags.ReadTimeout
	}
	if flags.WriteTimeout != nil && flagSet.Changed("write-timeout") {
		config.Server.WriteTimeout = *flags.WriteTimeout
	}
	if flags.IdleTimeout != nil && flagSet.Changed("idle-timeout") {
		config.Server.IdleTimeout = *flags.IdleTimeout
	}
	if flags.ShutdownTimeout != nil && flagSet.Changed("shutdown-timeout") {
		config.Server.ShutdownTimeout = *flags.ShutdownTimeout
	}
	if flags.ReloadEnabled != nil && flagSet.Changed("reload") {
		config.Reload.Enabled = *flags.ReloadEnabled
	}
	if flags.ReloadMode != nil && flagSet.Changed("reload-mode") {
		config.Reload.Mode = *flags.ReloadMode
	}
	if flags.ReloadCooldown != nil && flagSet.Changed("reload-cooldown") {
		config.Reload.Cooldown = *flags.ReloadCooldown
	}
	if flags.ReloadDebounce != nil && flagSet.Changed("reload-debounce") {
		config.Reload.Debounce = *flags.ReloadDebounce
	}
	if flags.LogLevel != nil && flagSet.Changed("log-level") {
		config.Observability.Logging.Level = *flags.LogLevel
	}
	if flags.LogFormat != nil && flagSet.Changed("log-format") {
		config.Observability.Logging.Format = *flags.LogFormat
	}
	if flags.TracingEnabled != nil && flagSet.Changed("tracing") {
		config.Observability.Tracing.Enabled = *flags.TracingEnabled
	}
}
