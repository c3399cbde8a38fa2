package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/queue"
	"stock-sync-service/internal/repository"

	"go.uber.org/zap"
)

var ErrNotEligible = errors.New("sync record is not eligible for retry")

// Scheduler decides when failed records are retried and puts them back on the queue
type Scheduler struct {
	store      repository.SyncRecordRepository
	enqueuer   queue.Enqueuer
	maxAge     time.Duration
	staleAfter time.Duration
	logger     *zap.Logger

	now    func() time.Time
	mu     sync.Mutex
	random *rand.Rand
}

// NewScheduler creates a scheduler sweeping failed records younger than maxAge.
// Processing claims older than staleAfter are treated as abandoned.
func NewScheduler(store repository.SyncRecordRepository, enqueuer queue.Enqueuer, maxAge, staleAfter time.Duration, logger *zap.Logger) *Scheduler {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &Scheduler{
		store:      store,
		enqueuer:   enqueuer,
		maxAge:     maxAge,
		staleAfter: staleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		random:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetEnqueuer sets the queue retries are scheduled onto
func (s *Scheduler) SetEnqueuer(enqueuer queue.Enqueuer) {
	s.enqueuer = enqueuer
}

func (s *Scheduler) jitter() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jitterLow + s.random.Float64()*(jitterHigh-jitterLow)
}

// ShouldRetry reports whether a record may be retried automatically now
func (s *Scheduler) ShouldRetry(record domain.SyncRecord) bool {
	state := record.State()
	if state.IsTerminal() {
		return false
	}

	policy := PolicyFor(state.ErrorType)
	if state.Attempts >= policy.MaxAttempts {
		return false
	}

	if state.LastSyncAttemptAt == nil {
		return true
	}
	elapsed := s.now().Sub(*state.LastSyncAttemptAt)
	return elapsed >= Cooldown && elapsed >= policy.MinWait
}

// RetryDelay computes the jittered backoff for the record's next attempt
func (s *Scheduler) RetryDelay(record domain.SyncRecord) time.Duration {
	state := record.State()
	return Delay(state.ErrorType, state.Attempts, s.jitter())
}

// ScheduleRetry moves a failed record back to pending and enqueues it with
// its backoff delay. It returns when the task becomes due.
func (s *Scheduler) ScheduleRetry(ctx context.Context, record domain.SyncRecord) (time.Time, error) {
	if !s.ShouldRetry(record) {
		return time.Time{}, ErrNotEligible
	}

	swapped, err := s.store.TransitionStatus(ctx, record.Kind(), record.RecordID(),
		[]domain.SyncStatus{domain.StatusFailed}, domain.StatusPending)
	if err != nil {
		return time.Time{}, err
	}
	if !swapped {
		return time.Time{}, ErrNotEligible
	}
	record.State().ResetForRetry()

	delay := s.RetryDelay(record)
	if err := s.enqueuer.Enqueue(ctx, queue.NewTask(record.Kind(), record.RecordID()), delay); err != nil {
		// back to failed so the next sweep picks it up again
		if _, revertErr := s.store.TransitionStatus(ctx, record.Kind(), record.RecordID(),
			[]domain.SyncStatus{domain.StatusPending}, domain.StatusFailed); revertErr != nil {
			s.logger.Error("Failed to revert record after enqueue failure",
				zap.String("kind", string(record.Kind())),
				zap.Int64("record_id", record.RecordID()),
				zap.Error(revertErr),
			)
		}
		return time.Time{}, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	enqueueAt := s.now().Add(delay)
	s.logger.Info("Retry scheduled",
		zap.String("kind", string(record.Kind())),
		zap.Int64("record_id", record.RecordID()),
		zap.String("error_type", string(record.State().ErrorType)),
		zap.Int("attempts", record.State().Attempts),
		zap.Time("enqueue_at", enqueueAt),
	)
	return enqueueAt, nil
}

// recoverClaim fails a record whose processing claim has gone stale so it
// can be scheduled again. It reports false when the claim is still live.
func (s *Scheduler) recoverClaim(ctx context.Context, record domain.SyncRecord) (bool, error) {
	expired, err := s.store.ExpireClaim(ctx, record.Kind(), record.RecordID(), s.now().Add(-s.staleAfter))
	if err != nil || !expired {
		return false, err
	}
	record.State().ExpireClaim()

	s.logger.Warn("Recovered abandoned processing claim",
		zap.String("kind", string(record.Kind())),
		zap.Int64("record_id", record.RecordID()),
		zap.Int("attempts", record.State().Attempts),
	)
	return true, nil
}

// Resync puts any non-synced record back on the queue immediately,
// ignoring category caps and cooldowns. A processing record is only
// taken back once its claim is stale.
func (s *Scheduler) Resync(ctx context.Context, kind domain.RecordKind, id int64) (domain.SyncRecord, error) {
	record, err := s.store.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if record.State().IsTerminal() {
		return nil, domain.ErrAlreadySynced
	}
	if record.State().IsStaleClaim(s.now().Add(-s.staleAfter)) {
		if _, err := s.recoverClaim(ctx, record); err != nil {
			return nil, err
		}
	}

	swapped, err := s.store.TransitionStatus(ctx, kind, id,
		[]domain.SyncStatus{domain.StatusFailed, domain.StatusPending}, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, domain.ErrConcurrentlyClaimed
	}
	record.State().ResetForRetry()

	if err := s.enqueuer.Enqueue(ctx, queue.NewTask(kind, id), 0); err != nil {
		return nil, fmt.Errorf("failed to enqueue resync: %w", err)
	}

	s.logger.Info("Manual resync queued",
		zap.String("kind", string(kind)),
		zap.Int64("record_id", id),
	)
	return record, nil
}

// CategoryCounts are the sweep totals for one error category
type CategoryCounts struct {
	Found   int `json:"found"`
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
}

// SweepReport summarizes one bulk retry sweep. Recovered counts abandoned
// processing claims that were failed before scheduling.
type SweepReport struct {
	Found      int                                  `json:"found"`
	Queued     int                                  `json:"queued"`
	Skipped    int                                  `json:"skipped"`
	Recovered  int                                  `json:"recovered"`
	ByCategory map[domain.ErrorType]*CategoryCounts `json:"by_category"`
}

func (r *SweepReport) category(errorType domain.ErrorType) *CategoryCounts {
	if errorType == domain.ErrorTypeNone {
		errorType = domain.ErrorTypeUnknown
	}
	counts, ok := r.ByCategory[errorType]
	if !ok {
		counts = &CategoryCounts{}
		r.ByCategory[errorType] = counts
	}
	return counts
}

// Sweep retries every eligible failed record younger than the age ceiling.
// Records stuck in processing past the stale window are failed first.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{ByCategory: make(map[domain.ErrorType]*CategoryCounts)}

	now := s.now()
	staleBefore := now.Add(-s.staleAfter)
	records, err := s.store.ListRetryable(ctx, now.Add(-s.maxAge), staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable records: %w", err)
	}

	for _, record := range records {
		if record.State().IsStaleClaim(staleBefore) {
			recovered, err := s.recoverClaim(ctx, record)
			if err != nil {
				s.logger.Warn("Failed to recover processing claim during sweep",
					zap.String("kind", string(record.Kind())),
					zap.Int64("record_id", record.RecordID()),
					zap.Error(err),
				)
			}
			if !recovered {
				continue
			}
			report.Recovered++
		}

		counts := report.category(record.State().ErrorType)
		report.Found++
		counts.Found++

		if _, err := s.ScheduleRetry(ctx, record); err != nil {
			if !errors.Is(err, ErrNotEligible) {
				s.logger.Warn("Failed to schedule retry during sweep",
					zap.String("kind", string(record.Kind())),
					zap.Int64("record_id", record.RecordID()),
					zap.Error(err),
				)
			}
			report.Skipped++
			counts.Skipped++
			continue
		}
		report.Queued++
		counts.Queued++
	}

	s.logger.Info("Retry sweep finished",
		zap.Int("found", report.Found),
		zap.Int("queued", report.Queued),
		zap.Int("skipped", report.Skipped),
		zap.Int("recovered", report.Recovered),
	)
	return report, nil
}

// RunPeriodic sweeps every interval until ctx is done
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Periodic retry sweep failed", zap.Error(err))
			}
		}
	}
}
