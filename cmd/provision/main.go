package main

import (
	"context"
	"flag"
	"os"
	"time"

	"tidebase/internal/capture"
	"tidebase/internal/config"
	"tidebase/internal/conn"
	"tidebase/internal/controlplane"
	"tidebase/internal/metrics"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

// provision applies schema migrations, installs the change-capture triggers
// and optionally loads demo data.
func main() {
	seed := flag.Bool("seed", false, "load demo data after provisioning")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall provisioning deadline")
	flag.Parse()

	cfg := config.Load()
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cp := controlplane.NewClient(cfg.Workspace.Host, cfg.Workspace.Token, cfg.Workspace.Timeout)
	resolver := conn.NewResolver(conn.ResolverConfig{
		Project:      cfg.Base.Project,
		Branch:       cfg.Base.Branch,
		HostOverride: cfg.Base.HostOverride,
		UserOverride: cfg.Base.UserOverride,
	}, cp)
	tokens := conn.NewTokenCache(cp, resolver, cfg.Base.FreshnessWindow, cfg.Base.TokenLifetime, metrics.NopConnObserver{})
	manager := conn.NewManager(conn.ManagerConfig{
		Database:       cfg.Base.Database,
		Port:           cfg.Base.Port,
		Attempts:       cfg.Base.ConnectAttempts,
		ConnectTimeout: cfg.Base.ConnectTimeout,
		BackoffBase:    cfg.Base.BackoffBase,
	}, resolver, tokens, metrics.NopConnObserver{})

	if err := capture.Provision(ctx, manager, capture.DefaultRules()); err != nil {
		logger.Error("provisioning failed", zap.Error(err))
		os.Exit(1)
	}

	if *seed {
		if err := capture.Seed(ctx, conn.NewExecutor(manager)); err != nil {
			logger.Error("seeding failed", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("provisioning complete")
}
