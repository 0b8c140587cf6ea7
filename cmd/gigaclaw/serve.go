package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gigaclaw/gigaclaw/internal/channels/telegram"
	"github.com/gigaclaw/gigaclaw/internal/config"
	"github.com/gigaclaw/gigaclaw/internal/container"
	"github.com/gigaclaw/gigaclaw/internal/ipc"
	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/internal/router"
	"github.com/gigaclaw/gigaclaw/internal/storage"
	"github.com/gigaclaw/gigaclaw/internal/tasks"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Environment: cfg.Tracing.Environment,
	})
	defer shutdownTracer(context.Background())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer stores.Close()

	taskStore, err := tasks.NewSQLiteStore(db)
	if err != nil {
		return err
	}

	validator := container.NewValidator(cfg.Container.AllowlistPath, logger, metrics)
	go func() {
		if err := validator.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "allowlist watcher exited", "error", err)
		}
	}()

	builder := container.NewMountBuilder(&cfg.Container, validator, logger)
	platform := container.ResolvePlatform(cfg.Container.Binary)
	runner := container.NewRunner(&cfg.Container, builder, platform, logger, metrics, tracer)
	snapshots := ipc.NewWriter(&cfg.Container, logger, metrics)

	adapter, err := telegram.NewAdapter(telegram.Config{
		Token:  cfg.Telegram.Token,
		Logger: logger.Slog(),
	})
	if err != nil {
		return err
	}

	rt, err := router.New(stores, taskStore, runner, snapshots, adapter, router.Config{
		TriggerPrefix:  cfg.Router.TriggerPrefix,
		ResponsePrefix: cfg.Router.ResponsePrefix,
		AssistantName:  cfg.Router.AssistantName,
	}, logger, metrics, tracer)
	if err != nil {
		return err
	}

	scheduler := tasks.NewScheduler(taskStore, rt, tasks.SchedulerConfig{
		PollInterval: cfg.Scheduler.PollInterval,
	}, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error(ctx, "metrics endpoint failed", "error", err)
			}
		}()
	}

	// Pump inbound messages into the router. Turns for different groups run
	// concurrently; per-group serialization happens inside the router.
	go func() {
		for msg := range adapter.Messages() {
			go func() {
				if err := rt.HandleMessage(ctx, msg); err != nil {
					logger.Error(ctx, "failed to handle message", "chat_id", msg.ChatID, "error", err)
				}
			}()
		}
	}()

	logger.Info(ctx, "gigaclaw host started", "image", cfg.Container.Image)

	if err := adapter.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "adapter shutdown", "error", err)
	}
	logger.Info(context.Background(), "gigaclaw host stopped")
	return nil
}
