// Package main is the entry point for the arbiter-core binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/archive"
	"github.com/arbiterai/arbiter-oss/pkg/config"
	"github.com/arbiterai/arbiter-oss/pkg/engine"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator/local"
	"github.com/arbiterai/arbiter-oss/pkg/ledger"
	"github.com/arbiterai/arbiter-oss/pkg/logging"
	"github.com/arbiterai/arbiter-oss/pkg/service"
	"github.com/arbiterai/arbiter-oss/pkg/stats"
	"github.com/arbiterai/arbiter-oss/pkg/telemetry"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Address = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: *prettyLogs || cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting arbiter-core", "config", *configPath, "listen", cfg.Server.Address)

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "arbiter-core",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to open ledger store", "error", err)
		os.Exit(1)
	}
	led, err := ledger.Open(store, logger)
	if err != nil {
		logger.Error("Failed to open attestation ledger", "error", err)
		os.Exit(1)
	}

	clients, err := buildClients(cfg, logger)
	if err != nil {
		logger.Error("Failed to build evaluator clients", "error", err)
		os.Exit(1)
	}

	var sink archive.Sink
	if cfg.Archive.Enabled {
		sink = archive.NewMemorySink()
	}

	coord := engine.New(clients, led, engine.Config{
		GlobalDeadline: cfg.Governance.GlobalDeadline,
		Archive:        sink,
		Logger:         logger,
	})

	limiter := governance.NewRateLimiter(governance.RateLimiterConfig{
		RequestsPerSecond: int(cfg.Governance.RateLimit.RatePerSecond),
		BurstSize:         cfg.Governance.RateLimit.Burst,
	})

	svc := service.New(coord, stats.New(led), service.NewMetrics(), limiter, logger)

	// The on-disk config is immutable at runtime; the watcher tells the
	// operator when a restart would pick up a change.
	if watcher, err := config.NewWatcher(*configPath, logger); err != nil {
		logger.Warn("Config watcher disabled", "error", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Error("Failed to close config watcher", "error", err)
			}
		}()
	}

	server := startServer(cfg.Server.Address, svc.Handler(), logger)

	waitForShutdown(server, logger)

	coord.Close()
	if err := store.Close(); err != nil {
		logger.Error("Failed to close ledger store", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Failed to flush telemetry", "error", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		// Running without a config file is fine; defaults plus env apply.
		return config.Load("")
	}
	return config.Load(path)
}

func openStore(cfg *config.Config, logger *slog.Logger) (ledger.Store, error) {
	if cfg.Ledger.Path == "" {
		logger.Warn("No ledger path configured, attestation records are not durable")
		return ledger.NewMemoryStore(), nil
	}
	return ledger.NewFileStore(cfg.Ledger.Path)
}

// buildClients assembles the evaluator panel: a remote HTTP client for each
// spec with an address, the built-in local evaluator otherwise, each wrapped
// in its per-evaluator circuit breaker.
func buildClients(cfg *config.Config, logger *slog.Logger) ([]evaluator.Client, error) {
	breakers := governance.NewBreakerSet(governance.BreakerConfig{
		FailureThreshold: cfg.Governance.Breaker.FailureThreshold,
		Window:           cfg.Governance.Breaker.Window,
		Cooldown:         cfg.Governance.Breaker.Cooldown,
	})

	specs := cfg.Specs()
	clients := make([]evaluator.Client, 0, len(specs))
	for _, spec := range specs {
		var inner evaluator.Client
		if spec.Address != "" {
			inner = evaluator.NewHTTPClient(spec, logger)
		} else {
			c, err := local.NewClient(spec)
			if err != nil {
				return nil, err
			}
			inner = c
		}
		clients = append(clients, evaluator.NewBreakerClient(inner, breakers.For(spec.Role)))
		logger.Info("Evaluator configured",
			"role", string(spec.Role),
			"address", spec.Address,
			"threshold", spec.Threshold,
			"timeout", spec.Timeout)
	}
	return clients, nil
}

func startServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Handler:      otelhttp.NewHandler(handler, "arbiter.core"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", addr, "error", err)
		os.Exit(1)
	}

	// Log the actual resolved address (useful when addr is :0)
	logger.Info("Server listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
}
