package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ReloadPasses    *prometheus.CounterVec
	ReloadDuration  *prometheus.HistogramVec
	FileReloads     *prometheus.CounterVec
	WatchedFiles    *prometheus.GaugeVec
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	HealthStatus    prometheus.Gauge

	registry *prometheus.Registry
	handler  http.Handler
}

func NewMetrics() *Metrics {
	return &Metrics{
		ReloadPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reload_passes_total",
				Help: "Total number of detection-and-reload passes that found changed files",
			},
			[]string{"application"},
		),
		ReloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reload_pass_duration_seconds",
				Help:    "Duration of reload passes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"application"},
		),
		FileReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reload_files_total",
				Help: "Per-file reload outcomes",
			},
			[]string{"application", "result"},
		),
		WatchedFiles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reload_watched_files",
				Help: "Number of files currently watched",
			},
			[]string{"application"},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HealthStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "app_health_status",
				Help: "Application health status (1 = healthy, 0 = unhealthy)",
			},
		),
	}
}

func (m *Metrics) RecordReloadPass(application string, duration time.Duration) {
	m.ReloadPasses.WithLabelValues(application).Inc()
	m.ReloadDuration.WithLabelValues(application).Observe(duration.Seconds())
}

func (m *Metrics) RecordFileReload(application, result string) {
	m.FileReloads.WithLabelValues(application, result).Inc()
}

func (m *Metrics) SetWatchedFiles(application string, n int) {
	m.WatchedFiles.WithLabelValues(application).Set(float64(n))
}

func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.RequestCount.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.HealthStatus.Set(1)
	} else {
		m.HealthStatus.Set(0)
	}
}

func (m *Metrics) Handler() http.Handler {
	if m.handler != nil {
		return m.handler
	}
	return promhttp.Handler()
}

// Register puts every metric on a private registry so tests and multiple
// instances never collide on the global default.
func (m *Metrics) Register() error {
	m.registry = prometheus.NewRegistry()

	collectors := []prometheus.Collector{
		m.ReloadPasses,
		m.ReloadDuration,
		m.FileReloads,
		m.WatchedFiles,
		m.RequestCount,
		m.RequestDuration,
		m.HealthStatus,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}

	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return nil
}
