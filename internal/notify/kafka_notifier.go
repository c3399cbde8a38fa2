package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-sync-service/internal/queue"

	"go.uber.org/zap"
)

const failureMessageType = "StockSyncFailed"

// KafkaNotifier publishes failure notices to the notifications topic
type KafkaNotifier struct {
	producer *queue.Producer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(producer *queue.Producer, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (n *KafkaNotifier) NotifyFailure(ctx context.Context, notice FailureNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal failure notice: %w", err)
	}

	key := fmt.Sprintf("%s:%d", notice.Kind, notice.RecordID)
	if err := n.producer.Send(ctx, n.topic, key, failureMessageType, payload); err != nil {
		return fmt.Errorf("failed to publish failure notice: %w", err)
	}

	n.logger.Info("Failure notice published",
		zap.String("event_id", notice.EventID),
		zap.String("record", key),
		zap.String("error_type", string(notice.ErrorType)),
		zap.Bool("permanent", notice.Permanent),
	)
	return nil
}
