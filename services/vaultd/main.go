package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	genesisconfig "defipool/config"
	"defipool/core/events"
	"defipool/gateway/middleware"
	"defipool/observability"
	"defipool/observability/logging"
	telemetry "defipool/observability/otel"
	"defipool/services/vaultd/config"
	"defipool/services/vaultd/executor"
	"defipool/services/vaultd/export"
	"defipool/services/vaultd/inbox"
	"defipool/services/vaultd/journal"
	"defipool/services/vaultd/server"
	"defipool/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/vaultd/config.yaml", "path to vaultd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULT_ENV"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("vaultd: load config: %v", err)
	}

	logOpts := logging.Options{Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.File != "" {
		logOpts.File = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}
	}
	logger, logCloser := logging.SetupWithOptions("vaultd", env, logOpts)
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("vaultd", env))
	if err != nil {
		log.Fatalf("vaultd: init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("vaultd: create data dir: %v", err)
	}
	genesis, err := genesisconfig.Load(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("vaultd: load genesis: %v", err)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("vaultd: open state: %v", err)
	}
	defer db.Close()

	jrnl, err := journal.Open(cfg.JournalDSN, cfg.IsPostgres())
	if err != nil {
		log.Fatalf("vaultd: open journal: %v", err)
	}
	defer jrnl.Close()
	logger.Info("journal opened", slog.String("dsn", logging.MaskDSN(cfg.JournalDSN)))

	ib, err := inbox.Open(cfg.InboxPath, nil)
	if err != nil {
		log.Fatalf("vaultd: open inbox: %v", err)
	}
	defer ib.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	vaultMetrics := observability.NewVaultMetrics(registry)
	broadcaster := events.NewBroadcaster()

	exec, err := executor.Bootstrap(db, genesis, executor.Options{
		Journal: jrnl,
		Inbox:   ib,
		Emitter: events.Multi{broadcaster, vaultMetrics},
		Metrics: vaultMetrics,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("vaultd: bootstrap vault: %v", err)
	}

	exporter, err := export.NewExporter(cfg.ExportDir, logger)
	if err != nil {
		log.Fatalf("vaultd: export dir: %v", err)
	}
	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("vaultd: configure auth: %v", err)
	}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"user":     {RatePerSecond: cfg.RateLimits.User.RatePerSecond, Burst: cfg.RateLimits.User.Burst},
		"operator": {RatePerSecond: cfg.RateLimits.Operator.RatePerSecond, Burst: cfg.RateLimits.Operator.Burst},
		"relayer":  {RatePerSecond: cfg.RateLimits.Relayer.RatePerSecond, Burst: cfg.RateLimits.Relayer.Burst},
		"public":   {RatePerSecond: cfg.RateLimits.Public.RatePerSecond, Burst: cfg.RateLimits.Public.Burst},
	}, logger)

	srv, err := server.New(server.Config{
		Executor:      exec,
		Auth:          auth,
		Limiter:       limiter,
		Observability: middleware.NewObservability(registry, logger),
		Broadcaster:   broadcaster,
		Journal:       jrnl,
		Exporter:      exporter,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:        logger,
		DevMode:       cfg.DevMode,
	})
	if err != nil {
		log.Fatalf("vaultd: server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", slog.String("addr", cfg.ListenAddress), slog.Bool("dev_mode", cfg.DevMode))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	logger.Info("vaultd stopped")
}
