package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/herbtrace-api/api/swagger"
	"github.com/noah-isme/herbtrace-api/internal/app"
	"github.com/noah-isme/herbtrace-api/internal/handler"
	"github.com/noah-isme/herbtrace-api/internal/middleware"
	"github.com/noah-isme/herbtrace-api/pkg/config"
	"github.com/noah-isme/herbtrace-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/herbtrace-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/herbtrace-api/pkg/middleware/requestid"
)

// @title HerbTrace API
// @version 1.0.0
// @description Farm-to-consumer traceability for medicinal herbs.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}
	defer container.Close()
	container.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(container.Metrics))

	metricsHandler := handler.NewMetricsHandler(container.Metrics, container.DB)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var idempotency gin.HandlerFunc
	if container.Cache.Enabled() {
		idempotency = middleware.Idempotency(container.Cache, cfg.Idempotency.TTL, logr)
	}
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Workflow:    handler.NewWorkflowHandler(container.Workflow),
		SupplyChain: handler.NewSupplyChainHandler(container.SupplyChain),
		Provenance:  handler.NewProvenanceHandler(container.Provenance),
		Photo:       handler.NewPhotoHandler(container.Photos),
		Analytics:   handler.NewAnalyticsHandler(container.Analytics),
	}, middleware.JWT(container.Tokens), idempotency)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
