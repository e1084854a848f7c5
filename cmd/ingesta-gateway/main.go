// ingesta-gateway is the HTTP API that launches one ephemeral extraction
// container per ingestion request.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/api"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/credentials"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/dispatcher"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/health"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/observability"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/orchestrator"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/orchestrator/docker"
)

func main() {
	settings, err := setup(os.Stdout)
	if err == nil {
		err = run(settings)
	}
	if err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the .env file before installing the logger so LOG_LEVEL may come from it.
func setup(w io.Writer) (*config.Settings, error) {
	settings, err := config.Load()
	observability.SetupLogging(w, config.GetEnv("LOG_LEVEL", "info"))
	return settings, err
}

// apiWriteTimeout covers the longest run a request can block on. Unbounded runs
// get no write deadline so their envelope can always be delivered.
func apiWriteTimeout(runTimeout time.Duration) time.Duration {
	if runTimeout <= 0 {
		return 0
	}
	return runTimeout + time.Minute
}

func run(settings *config.Settings) error {
	ctx := context.Background()

	svcCfg := settings.Service
	dockerCfg := docker.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Optional run notifications
	var (
		publisher       job.Publisher
		eventDispatcher *dispatcher.MemoryDispatcher
	)
	if settings.Callback.URL != "" {
		eventDispatcher, err = dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(settings.Callback), metrics)
		if err != nil {
			return err
		}
		publisher = eventDispatcher
		slog.Info("Run notifications enabled", "url", settings.Callback.URL)
	}

	resolver := &credentials.Resolver{
		Candidates:    settings.Credentials.Candidates,
		ContainerPath: settings.Credentials.ContainerPath,
		HostPath:      settings.Credentials.HostPath,
		Target:        settings.Storage.MountTarget,
		Profile:       settings.Storage.Profile,
	}

	connect := docker.Dialer(dockerCfg)
	runner := orchestrator.NewRunner(connect, resolver, orchestrator.Config{
		Network:              dockerCfg.Network,
		PreferredCredentials: settings.Storage.CredentialsDir,
		RunTimeout:           dockerCfg.RunTimeout,
	}, metrics)

	jobService := job.NewService(runner, settings, publisher)

	// Remove stopped job containers left by a previous process
	if rt, err := docker.Connect(ctx, dockerCfg); err != nil {
		slog.Warn("Docker unavailable at startup, runs will fail until it is reachable", "error", err)
	} else {
		removed, err := rt.ReapOrphans(ctx, dockerCfg.ReapMinAge)
		if err != nil {
			slog.Warn("Failed to reap orphaned containers", "error", err)
		}
		metrics.RecordReaped(ctx, removed)
		rt.Close()
		slog.Info("Connected to Docker daemon", "reaped", removed)
	}

	// Create health checker
	healthChecker := health.NewChecker(
		health.Check{
			Name:     api.DockerCheck,
			Critical: true,
			Probe: health.ProbeFunc(func(ctx context.Context) error {
				rt, err := docker.Connect(ctx, dockerCfg)
				if err != nil {
					return err
				}
				return rt.Close()
			}),
		},
		health.Check{
			Name: "credentials",
			Probe: health.ProbeFunc(func(context.Context) error {
				_, err := resolver.Resolve(settings.Storage.CredentialsDir)
				return err
			}),
		},
	)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Jobs:          jobService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	writeTimeout := apiWriteTimeout(dockerCfg.RunTimeout)

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers; a zero timeout waits for every in-flight run.
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.Background(), context.CancelFunc(func() {})
		if timeout > 0 {
			shutdownCtx, cancel = context.WithTimeout(context.Background(), timeout)
		}
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: fail readiness so load balancers stop routing here
	healthChecker.SetShuttingDown()

	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: finish in-flight runs; each removes its own container
	slog.Info("Starting graceful shutdown")
	shutdown(writeTimeout)

	// Phase 3: flush pending run notifications
	if eventDispatcher != nil {
		slog.Info("Draining callback dispatcher")
		dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dispatcherCancel()
		if err := eventDispatcher.Close(dispatcherCtx); err != nil {
			slog.Warn("Dispatcher shutdown error", "error", err)
		}

		stats := eventDispatcher.Stats()
		slog.Info("Dispatcher stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
			"retries", stats.RetriesTotal,
		)
	}

	slog.Info("Shutdown complete")
	return nil
}
