package constants

import "time"

// Environment variable names.
const (
	EnvHost            = "APP_RELOAD_HOST"
	EnvPort            = "APP_RELOAD_PORT"
	EnvMetricsPort     = "APP_RELOAD_METRICS_PORT"
	EnvReadTimeout     = "APP_RELOAD_READ_TIMEOUT"
	EnvWriteTimeout    = "APP_RELOAD_WRITE_TIMEOUT"
	EnvIdleTimeout     = "APP_RELOAD_IDLE_TIMEOUT"
	EnvShutdownTimeout = "APP_RELOAD_SHUTDOWN_TIMEOUT"
	EnvAppFile         = "APP_RELOAD_APP_FILE"
	EnvAppName         = "APP_RELOAD_APP_NAME"
	EnvReloadEnabled   = "APP_RELOAD_ENABLED"
	EnvReloadMode      = "APP_RELOAD_MODE"
	EnvReloadCooldown  = "APP_RELOAD_COOLDOWN"
	EnvReloadDebounce  = "APP_RELOAD_DEBOUNCE"
	EnvLogLevel        = "APP_RELOAD_LOG_LEVEL"
	EnvLogFormat       = "APP_RELOAD_LOG_FORMAT"
	EnvTracingEnabled  = "APP_RELOAD_TRACING_ENABLED"
)

// Reload trigger modes.
const (
	ReloadModeRequest = "request"
	ReloadModeNotify  = "notify"
)

// Server defaults.
const (
	DefaultHost            = "localhost"
	DefaultPort            = "8080"
	DefaultMetricsPort     = "9090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Reload defaults.
const (
	DefaultReloadDebounce = 500 * time.Millisecond
	// DefaultTemplateCacheTTL bounds how long a rendered inline template
	// may be served after its source changed outside a reload.
	DefaultTemplateCacheTTL = 5 * time.Minute
)

// Well-known paths served by the host next to the application surface.
const (
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)
