package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"procflow/internal/api/handler"
	"procflow/internal/config"
	"procflow/internal/core/ports"
	"procflow/internal/core/postgres/repository"
	"procflow/internal/depval"
	"procflow/internal/engine"
	infraredis "procflow/internal/infrastructure/redis"
	"procflow/internal/metrics"
	"procflow/internal/notifier"
	"procflow/internal/procurement"
	"procflow/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	store := repository.NewCheckpointRepository(db)
	audit := repository.NewAuditRepository(db)
	approvals := repository.NewApprovalRepository(db)
	deps := repository.NewDependencyRepository(db)
	validator := depval.New(repository.NewStatusProvider(db))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	met := metrics.New(promRegistry)

	engineOpts := []engine.Option{
		engine.WithMetrics(met),
		engine.WithLogger(log),
		engine.WithStepBudget(cfg.StepBudget),
	}

	// Redis is optional: without it transition events are simply not
	// broadcast and the notifier stays off.
	var bus ports.EventBus
	if cfg.RedisAddr != "" {
		client, err := infraredis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		bus = infraredis.NewEventBus(client)
		engineOpts = append(engineOpts, engine.WithEventBus(bus))
	}

	registry := engine.NewRegistry()
	err = procurement.RegisterAll(registry, store, procurement.Deps{Validator: validator}, engineOpts...)
	if err != nil {
		log.Error("failed to build workflow definitions", "error", err)
		os.Exit(1)
	}

	if bus != nil {
		n := notifier.New(bus, registry, log)
		go func() {
			if err := n.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("notifier stopped", "error", err)
			}
		}()
	}

	svc := service.NewWorkflowService(registry, store, audit, service.Options{
		Approvals: approvals,
		Deps:      deps,
		Logger:    log,
	})
	workflowHandler := handler.NewWorkflowHandler(svc)

	router := gin.Default()
	workflowHandler.Register(router.Group("/api/v1"))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	log.Info("server starting", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
