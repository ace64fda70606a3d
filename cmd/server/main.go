package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tidebase/internal/api"
	"tidebase/internal/buffer"
	"tidebase/internal/config"
	"tidebase/internal/conn"
	"tidebase/internal/controlplane"
	"tidebase/internal/metrics"
	"tidebase/internal/repository"
	"tidebase/internal/service"
	"tidebase/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Connection core: discovery, credentials, retry-aware opens.
	observer := metrics.NewPrometheusObserver()
	cp := controlplane.NewClient(cfg.Workspace.Host, cfg.Workspace.Token, cfg.Workspace.Timeout)
	resolver := conn.NewResolver(conn.ResolverConfig{
		Project:      cfg.Base.Project,
		Branch:       cfg.Base.Branch,
		HostOverride: cfg.Base.HostOverride,
		UserOverride: cfg.Base.UserOverride,
	}, cp)
	tokens := conn.NewTokenCache(cp, resolver, cfg.Base.FreshnessWindow, cfg.Base.TokenLifetime, observer)
	manager := conn.NewManager(conn.ManagerConfig{
		Database:       cfg.Base.Database,
		Port:           cfg.Base.Port,
		Attempts:       cfg.Base.ConnectAttempts,
		ConnectTimeout: cfg.Base.ConnectTimeout,
		BackoffBase:    cfg.Base.BackoffBase,
	}, resolver, tokens, observer)

	pool, err := manager.NewPool(ctx, cfg.Base.PoolMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	opener := conn.NewPoolOpener(manager, pool)
	executor := conn.NewExecutor(opener)

	auditRepo := repository.NewAuditRepository(executor)
	statsRepo := repository.NewStatsRepository(executor)
	productRepo := repository.NewProductRepository(executor)
	userRepo := repository.NewUserRepository(executor)
	orderRepo := repository.NewOrderRepository(executor)

	feedBuf := buffer.NewFeedBuffer(cfg.Feed.BufferSize)
	hub := service.NewHub(observer)
	poller := service.NewFeedPoller(auditRepo, hub, feedBuf, observer, cfg.Feed.PollInterval, cfg.Feed.BatchLimit)

	dashboardSvc := service.NewDashboardService(statsRepo, productRepo, userRepo, orderRepo, executor)
	auditSvc := service.NewAuditService(auditRepo)
	querySvc := service.NewQueryService(executor)
	healthSvc := service.NewHealthService(resolver, tokens, opener)

	go func() {
		logger.Info("starting hub")
		hub.Run()
	}()
	go func() {
		logger.Info("starting feed poller")
		poller.Run(ctx)
	}()

	r := api.RegisterRoutes(
		api.NewDashboardHandler(dashboardSvc, healthSvc),
		api.NewAuditHandler(auditSvc),
		api.NewQueryHandler(querySvc),
		api.NewStreamHandler(hub, feedBuf),
		rdb,
		cfg.RateLimit.RequestsPerSecond,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server exited")
	return nil
}
