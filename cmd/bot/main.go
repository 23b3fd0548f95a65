package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fxmediacalicut-cloud/telegrambot/api/routes"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/artifacts"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/catalog"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/delivery"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/dispatch"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/registry"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/sessions"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/txnlog"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/wizard"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/config"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/metrics"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/redis"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/telegram"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "bot"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "bot",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	catalogService, err := catalog.NewService(ctx, catalog.NewRepository(dbClient.DB()), logg, catalog.DefaultProducts())
	if err != nil {
		logg.Error(ctx, "failed to create catalog service", err)
		os.Exit(1)
	}

	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		logg.Error(ctx, "failed to create artifact store", err)
		os.Exit(1)
	}

	txnLog, err := txnlog.New(cfg.TxnLog.Path)
	if err != nil {
		logg.Error(ctx, "failed to open transaction log", err)
		os.Exit(1)
	}

	botClient, err := telegram.NewClient(ctx, cfg.Bot, logg)
	if err != nil {
		logg.Error(ctx, "failed to create telegram client", err)
		os.Exit(1)
	}

	notifier, err := delivery.NewNotifier(botClient, artifactStore, cfg.Payment, cfg.Bot.AdminID)
	if err != nil {
		logg.Error(ctx, "failed to create notifier", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	txnMetrics := metrics.NewTransactionMetrics(promRegistry)

	registryService, err := registry.NewService(registry.Params{
		AdminID:  cfg.Bot.AdminID,
		Catalog:  catalogService,
		Recorder: txnLog,
		Notifier: notifier,
		Logger:   logg,
		Metrics:  txnMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create transaction registry", err)
		os.Exit(1)
	}

	selector, err := sessions.NewSelector(catalogService)
	if err != nil {
		logg.Error(ctx, "failed to create session selector", err)
		os.Exit(1)
	}

	wizardManager, err := wizard.NewManager(catalogService)
	if err != nil {
		logg.Error(ctx, "failed to create product wizard", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.New(dispatch.Params{
		AdminID:   cfg.Bot.AdminID,
		QueueSize: cfg.Bot.QueueSize,
		Catalog:   catalogService,
		Selector:  selector,
		Registry:  registryService,
		Wizard:    wizardManager,
		Notifier:  notifier,
		Artifacts: artifactStore,
		Files:     botClient,
		Sender:    botClient,
		Logger:    logg,
		Metrics:   txnMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create dispatcher", err)
		os.Exit(1)
	}
	go dispatcher.Run(ctx)

	if cfg.Bot.WebhookURL != "" {
		if err := botClient.SetWebhook(ctx, cfg.Bot.WebhookURL); err != nil {
			logg.Error(ctx, "failed to register webhook", err)
			os.Exit(1)
		}
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Logger:   logg,
		Dedup:    redisClient,
		Sink:     dispatcher,
		Metrics:  txnMetrics,
		Registry: promRegistry,
		ReadyChecks: map[string]func() error{
			"database": func() error { return dbClient.Ping(ctx) },
			"redis":    func() error { return redisClient.Ping(ctx) },
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	startedCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startedCtx, "starting webhook server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(startedCtx, "webhook server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(startedCtx, "error shutting down webhook server", err)
		}
		logg.Info(startedCtx, "webhook server stopped")
	}
}
