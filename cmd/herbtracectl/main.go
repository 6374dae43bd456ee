// Command herbtracectl runs operational tasks against the HerbTrace database.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/app"
	"github.com/noah-isme/herbtrace-api/pkg/config"
	"github.com/noah-isme/herbtrace-api/pkg/database"
	"github.com/noah-isme/herbtrace-api/pkg/logger"
)

func main() {
	root := newRootCmd(loadServices, runMigrations)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func loadServices(ctx context.Context) (*services, error) {
	cfg, logr, err := setup()
	if err != nil {
		return nil, err
	}
	cfg.Database.AutoMigrate = false
	cfg.Notify.Enabled = false
	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		return nil, err
	}
	return &services{
		workflow:    container.Workflow,
		provenance:  container.Provenance,
		supplyChain: container.SupplyChain,
		close: func() {
			container.Close()
			_ = logr.Sync()
		},
	}, nil
}

func runMigrations(ctx context.Context) ([]string, error) {
	cfg, logr, err := setup()
	if err != nil {
		return nil, err
	}
	defer logr.Sync() //nolint:errcheck
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	return database.Migrate(ctx, db, logr)
}
