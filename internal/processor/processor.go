package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/notify"
	"stock-sync-service/internal/queue"
	"stock-sync-service/internal/repository"
	"stock-sync-service/internal/retry"

	"go.uber.org/zap"
)

// RetryPlanner computes the backoff before a failed record is tried again
type RetryPlanner interface {
	RetryDelay(record domain.SyncRecord) time.Duration
}

// Processor syncs one record per task with the external inventory
type Processor struct {
	store      repository.SyncRecordRepository
	strategies map[domain.RecordKind]Strategy
	planner    RetryPlanner
	notifier   notify.Notifier
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewProcessor creates a processor. staleAfter is how long a processing claim
// is honored before another worker may take the record over.
func NewProcessor(
	store repository.SyncRecordRepository,
	strategies map[domain.RecordKind]Strategy,
	planner RetryPlanner,
	notifier notify.Notifier,
	staleAfter time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		store:      store,
		strategies: strategies,
		planner:    planner,
		notifier:   notifier,
		staleAfter: staleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle implements queue.Handler
func (p *Processor) Handle(ctx context.Context, task queue.Task) error {
	logger := p.logger.With(
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int64("record_id", task.RecordID),
	)

	strategy, ok := p.strategies[task.Kind]
	if !ok {
		return queue.Permanent(fmt.Errorf("no strategy for record kind %q", task.Kind))
	}

	// always work from the stored record, never from the task payload
	record, err := p.store.FindByID(ctx, task.Kind, task.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return queue.Permanent(err)
		}
		return fmt.Errorf("failed to load record: %w", err)
	}

	state := record.State()
	if state.IsTerminal() {
		logger.Debug("Record already synced, skipping")
		return nil
	}
	if state.LastSyncAttemptAt != nil && !task.EnqueuedAt.IsZero() && task.EnqueuedAt.Before(*state.LastSyncAttemptAt) {
		// an attempt started after this task was queued; its own redelivery carries on
		logger.Info("Task superseded by a newer attempt, skipping",
			zap.Time("enqueued_at", task.EnqueuedAt),
			zap.Time("last_sync_attempt_at", *state.LastSyncAttemptAt),
		)
		return nil
	}
	if state.Status == domain.StatusFailed && !retry.CanRetry(state.ErrorType, state.Attempts) {
		logger.Info("Record has used its retries for this category, skipping",
			zap.String("error_type", string(state.ErrorType)),
			zap.Int("attempts", state.Attempts),
		)
		return nil
	}

	now := p.now()
	claimed, err := p.store.BeginAttempt(ctx, task.Kind, task.RecordID, now, now.Add(-p.staleAfter))
	if err != nil {
		return fmt.Errorf("failed to claim record: %w", err)
	}
	if !claimed {
		logger.Info("Record is being processed by another worker, skipping")
		return nil
	}
	state.BeginAttempt(now)

	echo, applyErr := strategy.Apply(ctx, record)
	if applyErr == nil {
		state.MarkSynced(p.now(), echo)
		if err := p.store.SaveState(ctx, record); err != nil {
			logger.Error("External change applied but local state was not saved", zap.Error(err))
			return queue.Permanent(fmt.Errorf("failed to save synced state: %w", err))
		}
		logger.Info("Record synced", zap.Int("attempts", state.Attempts))
		return nil
	}

	return p.fail(ctx, record, applyErr, logger)
}

func (p *Processor) fail(ctx context.Context, record domain.SyncRecord, cause error, logger *zap.Logger) error {
	state := record.State()
	errorType := domain.ClassifyError(cause)
	state.MarkFailed(errorType, cause.Error())

	if err := p.store.SaveState(ctx, record); err != nil {
		logger.Error("Failed to save failed state", zap.Error(err), zap.NamedError("cause", cause))
		// the stored row still says processing; the sweep recovers it once the claim is stale
		return fmt.Errorf("failed to save failed state: %w", err)
	}

	willRetry := retry.CanRetry(errorType, state.Attempts)
	logger.Warn("Record sync failed",
		zap.String("error_type", string(errorType)),
		zap.Int("attempts", state.Attempts),
		zap.Bool("will_retry", willRetry),
		zap.Error(cause),
	)
	p.notify(ctx, record, !willRetry, logger)

	if !willRetry {
		return queue.Permanent(cause)
	}
	return &queue.RetryableError{Err: cause, Delay: p.planner.RetryDelay(record)}
}

// OnExhausted implements queue.ExhaustionHandler: the host runner gave up,
// so the record is marked permanently failed
func (p *Processor) OnExhausted(ctx context.Context, task queue.Task, cause error) error {
	record, err := p.store.FindByID(ctx, task.Kind, task.RecordID)
	if err != nil {
		return fmt.Errorf("failed to load exhausted record: %w", err)
	}

	state := record.State()
	if state.IsTerminal() || state.Status == domain.StatusProcessing {
		return nil
	}

	message := "retries exhausted"
	if cause != nil {
		message = fmt.Sprintf("retries exhausted: %s", cause.Error())
	}
	state.MarkFailed(domain.ErrorTypePermanentlyFailed, message)
	if err := p.store.SaveState(ctx, record); err != nil {
		return fmt.Errorf("failed to mark record permanently failed: %w", err)
	}

	logger := p.logger.With(
		zap.String("kind", string(task.Kind)),
		zap.Int64("record_id", task.RecordID),
	)
	logger.Error("Record permanently failed", zap.Int("task_attempts", task.Attempt))
	p.notify(ctx, record, true, logger)
	return nil
}

func (p *Processor) notify(ctx context.Context, record domain.SyncRecord, permanent bool, logger *zap.Logger) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyFailure(ctx, notify.NewFailureNotice(record, permanent)); err != nil {
		logger.Warn("Failed to publish failure notice", zap.Error(err))
	}
}
