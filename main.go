package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/leslieo2/go-app-reload/internal/config"
	"github.com/leslieo2/go-app-reload/internal/constants"
	"github.com/leslieo2/go-app-reload/internal/host"
	"github.com/leslieo2/go-app-reload/internal/observability"
	"github.com/leslieo2/go-app-reload/internal/reload"
)

func main() {
	flags := pflag.CommandLine

	configFile := flags.String("config", "", "Path to configuration file (YAML or JSON)")
	appFile := flags.String("app-file", "", "Path to the application definition file")
	appName := flags.String("app-name", "app", "Application name")
	hostFlag := flags.String("host", constants.DefaultHost, "Host to bind the server on")
	port := flags.String("port", constants.DefaultPort, "Port to run the server on")
	metricsPort := flags.String("metrics-port", constants.DefaultMetricsPort, "Port to run the metrics server on")

	readTimeout := flags.Duration("read-timeout", constants.DefaultReadTimeout, "HTTP server read timeout")
	writeTimeout := flags.Duration("write-timeout", constants.DefaultWriteTimeout, "HTTP server write timeout")
	idleTimeout := flags.Duration("idle-timeout", constants.DefaultIdleTimeout, "HTTP server idle timeout")
	shutdownTimeout := flags.Duration("shutdown-timeout", constants.DefaultShutdownTimeout, "Graceful shutdown timeout")

	reloadEnabled := flags.Bool("reload", true, "Enable reloading of changed definition files")
	reloadMode := flags.String("reload-mode", constants.ReloadModeRequest, "Reload trigger: request or notify")
	reloadCooldown := flags.Duration("reload-cooldown", 0, "Minimum interval between request-triggered detection passes")
	reloadDebounce := flags.Duration("reload-debounce", constants.DefaultReloadDebounce, "Debounce for filesystem events in notify mode")

	logLevel := flags.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flags.String("log-format", "json", "Log format: json or console")
	tracingEnabled := flags.Bool("tracing", false, "Enable tracing")

	pflag.Parse()

	cliFlags := &config.CLIFlags{
		Host:            hostFlag,
		Port:            port,
		MetricsPort:     metricsPort,
		AppFile:         appFile,
		AppName:         appName,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
		ReloadEnabled:   reloadEnabled,
		ReloadMode:      reloadMode,
		ReloadCooldown:  reloadCooldown,
		ReloadDebounce:  reloadDebounce,
		LogLevel:        logLevel,
		LogFormat:       logFormat,
		TracingEnabled:  tracingEnabled,
	}

	cfg, err := config.LoadConfig(*configFile, flags, cliFlags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.AppFile == "" {
		log.Fatal("An application definition file is required (--app-file)")
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics()
	if err := metrics.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	tracer, err := observability.NewTracer(cfg.Observability.Tracing)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}

	registries := reload.NewRegistries()

	var registry *reload.Registry
	var appOpts []host.AppOption
	if cfg.Reload.Enabled {
		registry = registries.For(cfg.AppName)
		appOpts = append(appOpts, host.WithObserver(registry))
	}

	app := host.NewApp(cfg.AppName, logger.Logger, appOpts...)
	templates := host.NewTemplateStore(constants.DefaultTemplateCacheTTL)
	loader := host.NewLoader(app, registry, templates, logger.Logger)

	ctx := context.Background()
	if err := loader.LoadFile(ctx, cfg.AppFile); err != nil {
		return fmt.Errorf("load %s: %w", cfg.AppFile, err)
	}

	var trigger host.Middleware
	if cfg.Reload.Enabled {
		if err := registry.WatchPatterns(cfg.Reload.AlsoReload); err != nil {
			return fmt.Errorf("also_reload patterns: %w", err)
		}
		if err := registry.IgnorePatterns(cfg.Reload.DontReload); err != nil {
			return fmt.Errorf("dont_reload patterns: %w", err)
		}

		runtime := host.Runtime{App: app, Loader: loader}
		broadcaster := reload.NewBroadcaster(logger.Logger)
		coordinator := reload.NewCoordinator(cfg.AppName, registry, runtime, logger.Logger,
			reload.WithMetrics(metrics),
			reload.WithTracer(tracer),
			reload.WithBroadcaster(broadcaster),
		)
		metrics.SetWatchedFiles(cfg.AppName, len(registry.All()))

		switch cfg.Reload.Mode {
		case constants.ReloadModeNotify:
			notifier, err := reload.NewNotifier(coordinator, logger.Logger, cfg.Reload.Debounce)
			if err != nil {
				return fmt.Errorf("initialize notifier: %w", err)
			}
			if err := notifier.Cover(registry); err != nil {
				return fmt.Errorf("cover watched files: %w", err)
			}
			notifier.Start()
			defer notifier.Stop()
		default:
			trigger = reload.NewTrigger(coordinator, logger.Logger, cfg.Reload.Cooldown).Middleware
		}
	}

	server := host.NewServer(app, cfg, logger, metrics, trigger)
	errCh := server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", zap.Error(err))
	}
	return nil
}
