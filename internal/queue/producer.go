package queue

import (
	"context"
	"fmt"
	"time"

	"stock-sync-service/internal/config"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Producer publishes messages to Kafka with retries and exponential backoff.
// Task, dead-letter and notification topics all go through it.
type Producer struct {
	producer    sarama.SyncProducer
	logger      *zap.Logger
	maxRetries  int
	baseDelay   time.Duration
	sendTimeout time.Duration
}

// NewSaramaProducer creates an idempotent sync producer for the configured brokers
func NewSaramaProducer(cfg *config.Config, logger *zap.Logger) (sarama.SyncProducer, error) {
	logger.Info("Creating Kafka producer", zap.Strings("brokers", cfg.KafkaBrokers))

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.KafkaClientID
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = cfg.KafkaRetries
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	saramaConfig.Version = sarama.V2_8_0_0

	// Network settings
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaConfig)
	if err != nil {
		logger.Error("Failed to create Kafka producer",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return producer, nil
}

// NewProducer wraps a sarama sync producer
func NewProducer(producer sarama.SyncProducer, logger *zap.Logger) *Producer {
	return &Producer{
		producer:    producer,
		logger:      logger,
		maxRetries:  3,
		baseDelay:   100 * time.Millisecond,
		sendTimeout: 5 * time.Second,
	}
}

// Send publishes value to topic. messageType is carried in the message-type header.
func (p *Producer) Send(ctx context.Context, topic, key, messageType string, value []byte) error {
	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("message-type"),
				Value: []byte(messageType),
			},
			{
				Key:   []byte("message-id"),
				Value: []byte(uuid.New().String()),
			},
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().UTC().Format(time.RFC3339)),
			},
		},
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
		done := make(chan error, 1)

		go func(attempt int) {
			partition, offset, err := p.producer.SendMessage(message)
			if err != nil {
				done <- err
				return
			}
			p.logger.Debug("Message published to Kafka",
				zap.String("topic", topic),
				zap.String("message_type", messageType),
				zap.Int32("partition", partition),
				zap.Int64("offset", offset),
				zap.Int("attempt", attempt+1),
			)
			done <- nil
		}(attempt)

		select {
		case err := <-done:
			cancel()
			if err == nil {
				return nil
			}
			p.logger.Warn("Failed to publish message to Kafka, retrying",
				zap.String("topic", topic),
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.maxRetries),
			)
		case <-sendCtx.Done():
			cancel()
			p.logger.Warn("Timeout publishing message to Kafka, retrying",
				zap.String("topic", topic),
				zap.Error(sendCtx.Err()),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.maxRetries),
			)
		}

		// Exponential backoff: 100ms, 200ms, 400ms
		if attempt < p.maxRetries-1 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("failed to publish message to %s after %d attempts", topic, p.maxRetries)
}

// Close closes the underlying producer
func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
