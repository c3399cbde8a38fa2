package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stock-sync-service/internal/config"
	"stock-sync-service/internal/domain"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Consumer reads sync tasks from Kafka and hands them to the runner
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	runner        *Runner
	logger        *zap.Logger
	groupID       string
	topics        []string
}

// NewConsumer creates a consumer group member for the task topic
func NewConsumer(cfg *config.Config, runner *Runner, logger *zap.Logger) (*Consumer, error) {
	logger.Info("Creating Kafka consumer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group_id", cfg.KafkaGroupID),
	)

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.KafkaClientID
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Version = sarama.V2_8_0_0

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	saramaConfig.Metadata.RefreshFrequency = 10 * time.Minute
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	consumerGroup, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, saramaConfig)
	if err != nil {
		logger.Error("Failed to create Kafka consumer group",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		consumerGroup: consumerGroup,
		runner:        runner,
		logger:        logger,
		groupID:       cfg.KafkaGroupID,
		topics:        []string{cfg.KafkaTopicTasks},
	}, nil
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{
		runner: c.runner,
		logger: c.logger,
	}

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Error("Consumer error", zap.Error(err))
		}
	}()

	c.logger.Info("Kafka consumer started",
		zap.Strings("topics", c.topics),
		zap.String("group_id", c.groupID),
	)

	for {
		// Consume returns on every rebalance; loop to rejoin the group
		if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
			c.logger.Error("Error from consumer",
				zap.Error(err),
				zap.String("error_type", fmt.Sprintf("%T", err)),
			)
			return fmt.Errorf("consumer group stopped: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}

// consumerGroupHandler handles Kafka consumer group messages
type consumerGroupHandler struct {
	runner *Runner
	logger *zap.Logger
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages()
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := h.handleMessage(session.Context(), message); err != nil {
				// leave the offset unmarked so the task is redelivered after a rebalance
				h.logger.Error("Failed to hand off sync task",
					zap.String("topic", message.Topic),
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
				return err
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	if messageType := headerValue(message.Headers, "message-type"); messageType != taskMessageType {
		h.logger.Warn("Message is not a sync task, skipping",
			zap.String("message_type", messageType),
			zap.Int64("offset", message.Offset),
		)
		return nil
	}

	task, err := DecodeTask(message.Value)
	if err != nil {
		h.logger.Error("Dropping undecodable sync task",
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return nil
	}

	return h.runner.Process(ctx, task)
}

// DecodeTask parses and validates a task payload
func DecodeTask(payload []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	if task.RecordID <= 0 {
		return Task{}, fmt.Errorf("task %q has no record id", task.ID)
	}
	if _, err := domain.ParseRecordKind(string(task.Kind)); err != nil {
		return Task{}, fmt.Errorf("task %q: %w", task.ID, err)
	}
	if task.Attempt < 1 {
		task.Attempt = 1
	}
	return task, nil
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, header := range headers {
		if string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
