package config

import (
	"fmt"
	"time"

	"github.com/leslieo2/go-app-reload/internal/constants"
)

// ReloadConfig controls the file-change detection and reload engine.
type ReloadConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Mode selects the trigger: "request" runs a detection pass on the
	// request path before each request is handled; "notify" subscribes to
	// filesystem events and runs passes in the background.
	Mode string `json:"mode" yaml:"mode"`

	// Cooldown caps how often the request trigger actually stats the
	// watched files. Zero checks on every request.
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`

	// Debounce collapses bursts of filesystem events in notify mode.
	Debounce time.Duration `json:"debounce" yaml:"debounce"`

	// AlsoReload lists glob patterns of files to watch even though they
	// define no elements of their own.
	AlsoReload []string `json:"also_reload" yaml:"also_reload"`

	// DontReload lists glob patterns of files whose changes are ignored.
	DontReload []string `json:"dont_reload" yaml:"dont_reload"`
}

// DefaultReloadConfig returns default reload configuration.
func DefaultReloadConfig() ReloadConfig {
	return ReloadConfig{
		Enabled:  true,
		Mode:     constants.ReloadModeRequest,
		Cooldown: 0,
		Debounce: constants.DefaultReloadDebounce,
	}
}

// Validate validates reload configuration.
func (r *ReloadConfig) Validate() error {
	switch r.Mode {
	case constants.ReloadModeRequest, constants.ReloadModeNotify:
	default:
		return fmt.Errorf("invalid mode: %s, must be one of: %s, %s",
			r.Mode, constants.ReloadModeRequest, constants.ReloadModeNotify)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative")
	}
	if r.Debounce < 0 {
		return fmt.Errorf("debounce must be non-negative")
	}
	return nil
}
