package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	taskMessageType       = "StockSyncTask"
	deadLetterMessageType = "StockSyncTaskExhausted"
)

// KafkaEnqueuer publishes sync tasks to the task topic.
// Delayed tasks are parked in the delay queue until they are due.
type KafkaEnqueuer struct {
	producer  *Producer
	delayed   DelayQueue
	taskTopic string
	dlqTopic  string
	logger    *zap.Logger
}

// NewKafkaEnqueuer creates an enqueuer; delayed may be nil, in which case
// the delay is carried on the task and honored by the consuming runner
func NewKafkaEnqueuer(producer *Producer, delayed DelayQueue, taskTopic, dlqTopic string, logger *zap.Logger) *KafkaEnqueuer {
	return &KafkaEnqueuer{
		producer:  producer,
		delayed:   delayed,
		taskTopic: taskTopic,
		dlqTopic:  dlqTopic,
		logger:    logger,
	}
}

// Enqueue publishes task now, or schedules it when delay is positive
func (e *KafkaEnqueuer) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	if delay > 0 {
		readyAt := time.Now().UTC().Add(delay)
		if e.delayed != nil {
			if err := e.delayed.Schedule(ctx, task, readyAt); err != nil {
				return fmt.Errorf("failed to schedule task %s: %w", task.ID, err)
			}
			e.logger.Debug("Sync task scheduled",
				zap.String("task_id", task.ID),
				zap.String("record", task.Key()),
				zap.Time("ready_at", readyAt),
			)
			return nil
		}
		task.NotBefore = readyAt
	}

	return e.publish(ctx, task)
}

func (e *KafkaEnqueuer) publish(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := e.producer.Send(ctx, e.taskTopic, task.Key(), taskMessageType, payload); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}

	e.logger.Info("Sync task enqueued",
		zap.String("task_id", task.ID),
		zap.String("record", task.Key()),
		zap.Int("attempt", task.Attempt),
	)
	return nil
}

// deadLetter is the payload written to the DLQ topic
type deadLetter struct {
	Task     Task      `json:"task"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetter publishes an exhausted task to the DLQ topic
func (e *KafkaEnqueuer) DeadLetter(ctx context.Context, task Task, cause error) error {
	letter := deadLetter{Task: task, FailedAt: time.Now().UTC()}
	if cause != nil {
		letter.Error = cause.Error()
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	if err := e.producer.Send(ctx, e.dlqTopic, task.Key(), deadLetterMessageType, payload); err != nil {
		return fmt.Errorf("failed to publish dead letter for task %s: %w", task.ID, err)
	}
	return nil
}

// PublishDue moves due tasks from the delay queue onto the task topic
func (e *KafkaEnqueuer) PublishDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if e.delayed == nil {
		return 0, nil
	}

	tasks, err := e.delayed.Due(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, task := range tasks {
		if err := e.publish(ctx, task); err != nil {
			// put it back so the next tick retries
			if schedErr := e.delayed.Schedule(ctx, task, now); schedErr != nil {
				e.logger.Error("Failed to reschedule undelivered task",
					zap.String("task_id", task.ID),
					zap.Error(schedErr),
				)
			}
			return published, err
		}
		published++
	}
	return published, nil
}

// RunDelayPump calls PublishDue every interval until ctx is done
func (e *KafkaEnqueuer) RunDelayPump(ctx context.Context, interval time.Duration) {
	if e.delayed == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := e.PublishDue(ctx, time.Now().UTC(), 100)
			if err != nil {
				e.logger.Error("Delay pump failed", zap.Error(err))
				continue
			}
			if count > 0 {
				e.logger.Info("Delayed tasks released", zap.Int("count", count))
			}
		}
	}
}
