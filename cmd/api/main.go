package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-sync-service/internal/auth"
	"stock-sync-service/internal/bootstrap"
	"stock-sync-service/internal/commands"
	"stock-sync-service/internal/config"
	"stock-sync-service/internal/handlers"
	"stock-sync-service/pkg/logger"
	"stock-sync-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "stock-sync-service/docs" // Import docs for Swagger
)

// @title           Stock Sync Service API
// @version         1.0
// @description     Records stock intents locally and syncs them to the external inventory through a durable task queue

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	appLogger := logger.New(cfg.Environment, "stock-sync-api")
	defer appLogger.Sync()

	appLogger.Info("Starting stock sync API",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
	)

	appLogger.Info("Kafka Configuration",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic_tasks", cfg.KafkaTopicTasks),
		zap.String("topic_notifications", cfg.KafkaTopicNotifications),
		zap.String("client_id", cfg.KafkaClientID),
	)

	components, err := bootstrap.Build(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enqueuer, closeQueue := components.TaskEnqueuer(ctx)
	defer closeQueue()

	service := commands.NewService(components.Store, components.Gateway, enqueuer, commands.Config{
		DefaultLocationID: cfg.DefaultLocationID,
		FloorLocationID:   cfg.FloorLocationID,
	}, appLogger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryHandler(appLogger))
	router.Use(logger.GinMiddleware(appLogger))

	// Request ID middleware (must be early in the chain)
	router.Use(middleware.RequestIDMiddleware(appLogger))
	requestIDStore := middleware.NewCacheRequestIDStore(components.Cache)
	router.Use(middleware.IdempotencyMiddleware(requestIDStore, appLogger, cfg.IdempotencyTTL))
	router.Use(middleware.ErrorHandler(appLogger))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, appLogger)

	syncHandler := handlers.NewSyncHandler(appLogger, service, components.Scheduler, components.Store)
	syncHandler.AddHealthCheck("ledger", components.Store)
	if components.Redis != nil {
		syncHandler.AddHealthCheck("redis", redisPinger{components})
	}
	syncHandler.RegisterRoutes(router.Group("/api/v1"), middleware.AuthMiddleware(jwtManager, appLogger))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		appLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	appLogger.Info("Server exited")
}

type redisPinger struct {
	components *bootstrap.Components
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.components.Redis.Ping(ctx).Err()
}
