// Command jobhookd serves the job execution endpoint, the admin routes and
// the reconciliation sweep.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/jobhook"
	"github.com/xraph/jobhook/cron"
	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/internal/config"
	"github.com/xraph/jobhook/internal/jobs"
	"github.com/xraph/jobhook/internal/logger"
	"github.com/xraph/jobhook/internal/telemetry"
	"github.com/xraph/jobhook/observability"
	"github.com/xraph/jobhook/provider/stream"
	"github.com/xraph/jobhook/store/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("jobhookd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// OTel must init before the logger: production logs go through the
	// OTel logger provider.
	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}

	log := logger.Setup(cfg)
	if tel != nil {
		log.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		log.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	log.InfoContext(ctx, "jobhookd starting", "env", cfg.Env, "provider", cfg.Jobs.Provider)
	if err := id.Init(1); err != nil {
		return fmt.Errorf("init snowflake id generator: %w", err)
	}

	store, err := postgres.New(ctx, cfg.DB.DSN,
		postgres.WithLogger(log),
		postgres.WithPoolSize(cfg.DB.MaxConns, cfg.DB.MinConns),
	)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("migrate database: %w", err)
	}
	log.InfoContext(ctx, "database connected")

	opts := []jobhook.Option{
		jobhook.WithStore(store),
		jobhook.WithLogger(log),
		jobhook.WithProvider(cfg.Jobs.Provider),
		jobhook.WithInternalURL(cfg.Jobs.InternalURL),
		jobhook.WithSigningSecret(cfg.Jobs.SigningSecret),
		jobhook.WithAdminAPIKey(cfg.AdminAPIKey),
		jobhook.WithDispatchTimeout(cfg.Jobs.DispatchTimeout),
		jobhook.WithDispatchRateLimit(cfg.Jobs.DispatchRateLimit),
		jobhook.WithHandlerTimeout(cfg.Jobs.HandlerTimeout),
		jobhook.WithConcurrency(cfg.Jobs.Concurrency),
		jobhook.WithExtension(observability.NewMetricsExtension()),
	}
	if cfg.OTel.Enabled() {
		opts = append(opts, jobhook.WithServiceName(cfg.OTel.ServiceName))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

		streamCfg := stream.DefaultQueueConfig()
		streamCfg.Stream = cfg.Redis.Stream
		streamCfg.Group = cfg.Redis.Group
		streamCfg.Consumer = cfg.Redis.Consumer
		opts = append(opts, jobhook.WithRedis(redisClient), jobhook.WithStreamConfig(streamCfg))
	}

	client, err := jobhook.New(ctx, opts...)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create job client: %w", err)
	}
	if err := jobs.Register(client); err != nil {
		_ = store.Close()
		return fmt.Errorf("register jobs: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start provider: %w", err)
	}

	scheduler := cron.NewScheduler(client,
		cron.WithLogger(log),
		cron.WithExtensions(client.Extensions()),
	)
	scheduler.MustAdd(cron.NewEntry("nightly-digest", "0 3 * * *", jobs.TriggerDigestNightly, jobs.DigestInput{}))
	if cfg.Sweep.Enabled() {
		if err := scheduler.EnableSweep(client.Admin(), cfg.Sweep.Schedule, cfg.Sweep.StaleAfter); err != nil {
			_ = store.Close()
			return fmt.Errorf("enable sweep: %w", err)
		}
	}
	_ = scheduler.Start(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           client.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Executions run inside the request. The bulk-retry route clears
		// this deadline itself; jobctl's --timeout bounds it instead.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		log.ErrorContext(ctx, "http server error", "error", err)
	}

	log.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "cron shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "job client shutdown error", "error", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	log.InfoContext(shutdownCtx, "shutdown complete")
	return nil
}
