package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qbsync/internal/api"
	"qbsync/internal/config"
	"qbsync/internal/database"
	"qbsync/internal/hcp"
	"qbsync/internal/logging"
	"qbsync/internal/metrics"
	"qbsync/internal/notify"
	"qbsync/internal/qbo"
	"qbsync/internal/qbwc"
	"qbsync/internal/repository"
	"qbsync/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	sessions := initSessions(cfg, redisClient, &logger)

	notifier, err := notify.NewTelegram(cfg.Notify, &logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier disabled")
	}
	var qbwcNotifier qbwc.Notifier
	if notifier != nil {
		qbwcNotifier = notifier
	}

	adapter := qbwc.NewAdapter(cfg.QBWC, db, sessions, qbwcNotifier, &logger)
	hcpClient := hcp.New(cfg.HCP, cfg.Sync, &logger)
	var invoices syncer.InvoiceSource
	if cfg.QBO.AccessToken != "" {
		invoices = qbo.New(cfg.QBO, cfg.Sync, &logger)
	}
	orchestrator := syncer.NewOrchestrator(db, hcpClient, invoices, cfg.QBWC, cfg.Sync, &logger)

	server := api.NewServer(cfg, db, orchestrator, qbwc.NewHandler(adapter), &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go adapter.StartSweep(ctx)
	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, server, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unreachable, sessions stay in memory until it recovers")
	}

	return client
}

func initSessions(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) repository.SessionRepository {
	memory := repository.NewMemorySessionRepository()
	if redisClient == nil {
		return memory
	}

	primary := repository.NewRedisSessionRepository(redisClient, cfg.QBWC.SessionTTL)
	return repository.NewFailoverSessionRepository(primary, memory, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func startServer(ctx context.Context, server *api.Server, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
