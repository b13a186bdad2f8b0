package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leslieo2/go-app-reload/internal/config"
	"github.com/leslieo2/go-app-reload/internal/constants"
	"github.com/leslieo2/go-app-reload/internal/observability"
)

// Server serves an App over HTTP with the reload trigger, request
// logging, a health endpoint, and a separate metrics listener.
type Server struct {
	app       *App
	config    *config.Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	trigger   Middleware
	startTime time.Time

	server        *http.Server
	metricsServer *http.Server
}

// NewServer builds a server. trigger may be nil when reloading is
// disabled.
func NewServer(app *App, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, trigger Middleware) *Server {
	return &Server{
		app:       app,
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		trigger:   trigger,
		startTime: time.Now(),
	}
}

// Handler assembles the full request pipeline. The trigger wraps
// everything else so a reload pass completes before any stale handler
// can run; health stays outside the app surface so a broken reload never
// hides it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.PathHealth, s.healthHandler)
	mux.Handle("/", s.app.Handler())

	var h http.Handler = mux
	h = s.loggingMiddleware(h)
	if s.trigger != nil {
		h = s.trigger(h)
	}
	return h
}

// Start launches the HTTP and metrics listeners. It returns immediately;
// listener errors are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 2)

	s.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info("starting server",
		zap.String("host", s.config.Server.Host),
		zap.String("port", s.config.Server.Port),
		zap.String("application", s.app.Name()),
	)

	if s.metrics != nil {
		s.metrics.SetHealthStatus(true)
		metricsMux := http.NewServeMux()
		metricsMux.Handle(constants.PathMetrics, s.metrics.Handler())
		s.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%s", s.config.Server.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.logger.Info("starting metrics server",
			zap.String("port", s.config.Server.MetricsPort),
		)
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	return errCh
}

// Shutdown drains both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.SetHealthStatus(false)
	}
	var firstErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)
		}
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status_code", wrapped.statusCode),
			zap.Duration("duration", duration),
		)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"application": s.app.Name(),
		"uptime":      time.Since(s.startTime).String(),
		"timestamp":   time.Now().UTC(),
	})
}
