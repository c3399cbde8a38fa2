package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-sync-service/internal/cache"
	"stock-sync-service/internal/config"
	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/gateway"
	"stock-sync-service/internal/notify"
	"stock-sync-service/internal/processor"
	"stock-sync-service/internal/queue"
	"stock-sync-service/internal/repository"
	"stock-sync-service/internal/retry"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	tokenCacheKey = "stock-sync:gateway:token"
	delayQueueKey = "stock-sync:tasks:delayed"

	delayPumpInterval = time.Second
	memoryQueueBuffer = 256
)

// Components are the long-lived dependencies shared by the API and the worker.
// Redis, Producer and Enqueuer are nil when their backing service is unreachable.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *repository.SQLiteStore
	Redis     *redis.Client
	Cache     cache.Cache
	Gateway   *gateway.Client
	Producer  *queue.Producer
	Enqueuer  *queue.KafkaEnqueuer
	Notifier  notify.Notifier
	Scheduler *retry.Scheduler
}

// Build opens the ledger and connects the optional Redis and Kafka backends.
// Only the ledger is mandatory.
func Build(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := repository.NewSQLiteStore(cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	c := &Components{
		Config: cfg,
		Logger: logger,
		Store:  store,
	}

	rdb, err := cache.NewRedisClient(cfg, logger)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to process-local caches", zap.Error(err))
	} else {
		c.Redis = rdb
	}
	c.Cache = cache.NewCache(c.Redis, logger)

	var tokens gateway.TokenCache = gateway.NewMemoryTokenCache()
	if c.Redis != nil {
		tokens = gateway.NewRedisTokenCache(c.Redis, tokenCacheKey, logger)
	}
	c.Gateway = gateway.NewClient(gateway.Config{
		BaseURL:           cfg.GatewayBaseURL,
		ApplicationID:     cfg.GatewayAppID,
		ApplicationSecret: cfg.GatewayAppSecret,
		InstallationToken: cfg.GatewayInstallToken,
		Timeout:           cfg.GatewayTimeout,
	}, tokens, logger)

	sp, err := queue.NewSaramaProducer(cfg, logger)
	if err != nil {
		logger.Warn("Kafka unavailable, tasks will run on the in-process queue", zap.Error(err))
		c.Notifier = notify.NewLogNotifier(logger)
	} else {
		c.Producer = queue.NewProducer(sp, logger)

		var delayed queue.DelayQueue = queue.NewMemoryDelayQueue()
		if c.Redis != nil {
			delayed = queue.NewRedisDelayQueue(c.Redis, delayQueueKey)
		}
		c.Enqueuer = queue.NewKafkaEnqueuer(c.Producer, delayed, cfg.KafkaTopicTasks, cfg.KafkaTopicDLQ, logger)
		c.Notifier = notify.NewKafkaNotifier(c.Producer, cfg.KafkaTopicNotifications, logger)
	}

	var enqueuer queue.Enqueuer
	if c.Enqueuer != nil {
		enqueuer = c.Enqueuer
	}
	c.Scheduler = retry.NewScheduler(store, enqueuer, cfg.SweepMaxAge, cfg.StaleProcessingAfter, logger)

	return c, nil
}

// NewProcessor wires the sync processor with both record strategies
func (c *Components) NewProcessor() *processor.Processor {
	strategies := map[domain.RecordKind]processor.Strategy{
		domain.KindScan:     processor.NewScanStrategy(c.Gateway, c.Config.DefaultLocationID),
		domain.KindMovement: processor.NewMovementStrategy(c.Gateway),
	}
	return processor.NewProcessor(c.Store, strategies, c.Scheduler, c.Notifier, c.Config.StaleProcessingAfter, c.Logger)
}

// NewRunner wraps the processor in the host runner. Redelivery and dead letters
// go to Kafka when it is connected.
func (c *Components) NewRunner(p *processor.Processor) *queue.Runner {
	ceiling := retry.RunnerCeiling(c.Config.TaskMaxAttempts)
	if ceiling != c.Config.TaskMaxAttempts {
		c.Logger.Warn("TASK_MAX_ATTEMPTS is below a retry category cap, raising it",
			zap.Int("configured", c.Config.TaskMaxAttempts),
			zap.Int("max_attempts", ceiling),
		)
	}
	runnerConfig := queue.RunnerConfig{
		MaxAttempts: ceiling,
		BaseDelay:   c.Config.TaskRetryDelay,
	}
	if c.Enqueuer != nil {
		return queue.NewRunner(p, p, c.Enqueuer, c.Enqueuer, runnerConfig, c.Logger)
	}
	return queue.NewRunner(p, p, nil, nil, runnerConfig, c.Logger)
}

// StartLocalQueue runs sync tasks in-process. Used when Kafka is unreachable.
func (c *Components) StartLocalQueue(ctx context.Context) *queue.MemoryQueue {
	runner := c.NewRunner(c.NewProcessor())
	pool := queue.NewMemoryQueue(runner, c.Config.WorkerConcurrency, memoryQueueBuffer, c.Logger)
	c.Scheduler.SetEnqueuer(pool)
	pool.Start(ctx)

	c.Logger.Info("In-process task queue started", zap.Int("workers", c.Config.WorkerConcurrency))
	return pool
}

// TaskEnqueuer returns Kafka when connected, otherwise starts the in-process queue
func (c *Components) TaskEnqueuer(ctx context.Context) (queue.Enqueuer, func() error) {
	if c.Enqueuer != nil {
		go c.Enqueuer.RunDelayPump(ctx, delayPumpInterval)
		return c.Enqueuer, func() error { return nil }
	}
	pool := c.StartLocalQueue(ctx)
	return pool, pool.Close
}

// Close releases every connection held by the components
func (c *Components) Close() error {
	var errs []error
	if c.Producer != nil {
		errs = append(errs, c.Producer.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	errs = append(errs, c.Store.Close())
	return errors.Join(errs...)
}
