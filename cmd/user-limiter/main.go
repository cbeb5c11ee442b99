package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/rozmerigpt/user-limiter/internal/abuse"
	"github.com/rozmerigpt/user-limiter/internal/api"
	"github.com/rozmerigpt/user-limiter/internal/clock"
	"github.com/rozmerigpt/user-limiter/internal/config"
	"github.com/rozmerigpt/user-limiter/internal/logger"
	"github.com/rozmerigpt/user-limiter/internal/observability"
	"github.com/rozmerigpt/user-limiter/internal/quota"
	"github.com/rozmerigpt/user-limiter/internal/ratelimit"
	"github.com/rozmerigpt/user-limiter/internal/storage"
	"github.com/rozmerigpt/user-limiter/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	// Load .env files before configuration reads the environment.
	config.LoadDotEnv()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	slog.Info("Starting user-limiter",
		"version", ver.Version,
		"commit", ver.GitCommit,
		"storage", cfg.Storage.Type)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	factory := storage.NewFactory()
	if err := factory.ValidateConfig(cfg.Storage); err != nil {
		slog.Error("Invalid storage configuration", "error", err)
		os.Exit(1)
	}
	storageInstance, err := factory.Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	// Backends without server-side expiry need the background sweeper to
	// clear out yesterday's counters and stale identity windows.
	if !storage.SelfExpiring(cfg.Storage.Type) {
		sweeper := storage.NewSweeper(activeStorage, cfg.Storage.SweepInterval, 0, log)
		defer sweeper.Close()
	}

	// Build the quota evaluation stack: counter engine, identity churn
	// monitor, and the service that ties them to the wire format.
	limits := quota.Limits{
		Comments:           cfg.Quota.CommentsPerDay,
		Posts:              cfg.Quota.PostsPerDay,
		SuspiciousComments: cfg.Quota.SuspiciousCommentsPerDay,
		SuspiciousPosts:    cfg.Quota.SuspiciousPostsPerDay,
	}
	engine := quota.NewEngine(activeStorage, clock.System(), limits, cfg.Storage.OperationTimeout, log)
	monitor := abuse.NewMonitor(activeStorage, abuse.Config{
		Threshold:        cfg.Quota.SuspicionThreshold,
		Retention:        cfg.Quota.SuspicionRetention,
		OperationTimeout: cfg.Storage.OperationTimeout,
	}, log)

	var quotaMetrics *observability.QuotaMetrics
	if cfg.Metrics.Enabled {
		quotaMetrics, err = observability.NewQuotaMetrics()
		if err != nil {
			slog.Error("Failed to create quota metrics", "error", err)
			os.Exit(1)
		}
	}

	serviceOpts := []quota.ServiceOption{quota.WithLogger(log)}
	if quotaMetrics != nil {
		serviceOpts = append(serviceOpts, quota.WithMetrics(quotaMetrics))
	}
	if cfg.Server.MinClientVersion != "" {
		minVersion, err := semver.NewVersion(cfg.Server.MinClientVersion)
		if err != nil {
			slog.Error("Invalid minimum client version", "error", err)
			os.Exit(1)
		}
		serviceOpts = append(serviceOpts, quota.WithMinClientVersion(minVersion))
	}
	quotaService := quota.NewService(engine, monitor, serviceOpts...)

	// Initialize HTTP handlers with storage for health checks
	handlers := api.NewHandlers(quotaService,
		api.WithStorage(activeStorage),
		api.WithQuotaMetrics(quotaMetrics),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	// Initialize rate limiter if enabled
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewMemoryLimiter(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.BurstSize,
			cfg.RateLimit.CleanupInterval,
		)
		defer limiter.Close()

		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(limiter)))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr)

		var err error
		if cfg.Server.TLSEnabled {
			if cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "" {
				slog.Error("TLS is enabled but cert file or key file is not specified")
				os.Exit(1)
			}
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}
