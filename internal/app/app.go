// Package app assembles repositories and services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/repository"
	"github.com/noah-isme/herbtrace-api/internal/service"
	"github.com/noah-isme/herbtrace-api/pkg/cache"
	"github.com/noah-isme/herbtrace-api/pkg/config"
	"github.com/noah-isme/herbtrace-api/pkg/database"
	"github.com/noah-isme/herbtrace-api/pkg/storage"
)

// Container holds the wired services of one process.
type Container struct {
	DB     *sqlx.DB
	Redis  *redis.Client
	Logger *zap.Logger

	Metrics       *service.MetricsService
	Cache         *service.CacheService
	Notifications *service.NotificationService
	Workflow      *service.WorkflowService
	SupplyChain   *service.SupplyChainService
	Provenance    *service.ProvenanceService
	Analytics     *service.AnalyticsService
	Photos        *service.PhotoService
	Tokens        *service.TokenService
}

// New connects to Postgres and, when enabled, Redis, then builds every service.
// Migrations run first when cfg.Database.AutoMigrate is set.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db, logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	c := &Container{DB: db, Logger: logger, Metrics: service.NewMetricsService()}

	client, err := cache.NewRedis(ctx, cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Info("redis disabled, idempotency replay and event fan-out run locally")
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	default:
		c.Redis = client
	}

	var cacheRepo service.CacheRepository
	var publisher service.EventPublisher = service.NewLogEventPublisher(logger)
	if c.Redis != nil {
		cacheRepo = repository.NewCacheRepository(c.Redis, logger)
		if cfg.Notify.Channel != "" {
			publisher = repository.NewRedisEventPublisher(c.Redis, cfg.Notify.Channel)
		}
	}
	c.Cache = service.NewCacheService(cacheRepo, c.Metrics, cfg.Idempotency.TTL, logger, cfg.Idempotency.Enabled && cacheRepo != nil)

	if cfg.Notify.Enabled {
		c.Notifications = service.NewNotificationService(publisher, service.NotificationConfig{
			Workers:    cfg.Notify.Workers,
			BufferSize: cfg.Notify.BufferSize,
		}, c.Metrics, logger)
	}

	stores := service.WorkflowStores{
		Lots:         repository.NewLotRepository(db),
		Harvests:     repository.NewHarvestRepository(db),
		TestResults:  repository.NewTestResultRepository(db),
		Batches:      repository.NewProcessingBatchRepository(db),
		Certificates: repository.NewCertificateRepository(db),
	}

	opts := []service.WorkflowServiceOption{
		service.WithWorkflowAudit(repository.NewAuditRepository(db)),
		service.WithWorkflowMetrics(c.Metrics),
		service.WithPendingPageSize(cfg.Workflow.PendingPageSize),
	}
	if c.Notifications != nil {
		opts = append(opts, service.WithWorkflowNotifier(c.Notifications))
	}
	c.Workflow = service.NewWorkflowService(stores, database.NewTransactor(db), validator.New(), logger, opts...)
	c.SupplyChain = service.NewSupplyChainService(stores, logger)
	c.Provenance = service.NewProvenanceService(stores, logger)
	c.Analytics = service.NewAnalyticsService(repository.NewAnalyticsRepository(db), c.Metrics, logger)
	c.Tokens = service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	photos, err := storage.NewLocalStorage(cfg.Photos.StorageDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("photo storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Photos.SignedURLSecret, cfg.Photos.SignedURLTTL)
	c.Photos = service.NewPhotoService(stores.Harvests, photos, signer, cfg.APIPrefix)

	return c, nil
}

// Start launches background workers.
func (c *Container) Start(ctx context.Context) {
	if c.Notifications != nil {
		c.Notifications.Start(ctx)
	}
}

// Close stops workers and releases connections.
func (c *Container) Close() {
	if c.Notifications != nil {
		c.Notifications.Stop()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("database close failed", zap.Error(err))
		}
	}
}
