package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RunnerConfig bounds how often the host runner redelivers a failing task
type RunnerConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Runner delivers tasks to a Handler and decides what happens on failure:
// redeliver with a delay, drop on a permanent error, or hand off to the
// exhaustion handler and the dead-letter sink once MaxAttempts is reached.
type Runner struct {
	handler     Handler
	exhausted   ExhaustionHandler
	requeue     Enqueuer
	deadLetters DeadLetterSink
	config      RunnerConfig
	logger      *zap.Logger
}

// NewRunner creates a runner. exhausted and deadLetters may be nil.
func NewRunner(handler Handler, exhausted ExhaustionHandler, requeue Enqueuer, deadLetters DeadLetterSink, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Runner{
		handler:     handler,
		exhausted:   exhausted,
		requeue:     requeue,
		deadLetters: deadLetters,
		config:      cfg,
		logger:      logger,
	}
}

// SetRequeue sets the enqueuer used for redelivery
func (r *Runner) SetRequeue(requeue Enqueuer) {
	r.requeue = requeue
}

// Process runs one delivery of task. The returned error is only non-nil when
// the task could not be handed anywhere, so the caller should not ack it.
func (r *Runner) Process(ctx context.Context, task Task) error {
	if err := waitUntil(ctx, task.NotBefore); err != nil {
		return err
	}

	err := r.handler.Handle(ctx, task)
	if err == nil {
		return nil
	}

	logger := r.logger.With(
		zap.String("task_id", task.ID),
		zap.String("record", task.Key()),
		zap.Int("attempt", task.Attempt),
	)

	if IsPermanent(err) {
		logger.Warn("Sync task failed permanently, not redelivering", zap.Error(err))
		return nil
	}

	if task.Attempt >= r.config.MaxAttempts {
		logger.Error("Sync task exhausted its attempts", zap.Error(err))
		r.exhaust(ctx, task, err, logger)
		return nil
	}

	delay := r.config.BaseDelay * time.Duration(task.Attempt)
	var retryable *RetryableError
	if errors.As(err, &retryable) && retryable.Delay > 0 {
		delay = retryable.Delay
	}

	if r.requeue == nil {
		logger.Error("No requeue target, dropping failed task", zap.Error(err))
		return nil
	}

	if requeueErr := r.requeue.Enqueue(ctx, task.Next(), delay); requeueErr != nil {
		logger.Error("Failed to requeue sync task", zap.Error(requeueErr))
		return requeueErr
	}

	logger.Info("Sync task failed, redelivery scheduled",
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	return nil
}

func (r *Runner) exhaust(ctx context.Context, task Task, cause error, logger *zap.Logger) {
	if r.exhausted != nil {
		if err := r.exhausted.OnExhausted(ctx, task, cause); err != nil {
			logger.Error("Exhaustion handler failed", zap.Error(err))
		}
	}

	if r.deadLetters != nil {
		if err := r.deadLetters.DeadLetter(ctx, task, cause); err != nil {
			logger.Error("Failed to publish dead letter", zap.Error(err))
		}
	}
}

func waitUntil(ctx context.Context, at time.Time) error {
	if at.IsZero() {
		return nil
	}
	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
