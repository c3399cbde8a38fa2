package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/queue"
	"stock-sync-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEnqueuer struct {
	mu     sync.Mutex
	tasks  []queue.Task
	delays []time.Duration
	err    error
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, task queue.Task, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.tasks = append(e.tasks, task)
	e.delays = append(e.delays, delay)
	return nil
}

func TestDelay_Bounds(t *testing.T) {
	low := Delay(domain.ErrorTypeNetwork, 3, jitterLow)
	high := Delay(domain.ErrorTypeNetwork, 3, jitterHigh)

	assert.Equal(t, 384*time.Second, low)
	assert.Equal(t, 576*time.Second, high)

	scheduler := NewScheduler(repository.NewInMemoryStore(), &fakeEnqueuer{}, 0, 0, zap.NewNop())
	record := failedMovement(domain.ErrorTypeNetwork, 3, time.Hour)
	for i := 0; i < 200; i++ {
		delay := scheduler.RetryDelay(record)
		assert.GreaterOrEqual(t, delay, 384*time.Second)
		assert.LessOrEqual(t, delay, 576*time.Second)
	}
}

func TestDelay_Table(t *testing.T) {
	tests := []struct {
		name      string
		errorType domain.ErrorType
		attempts  int
		jitter    float64
		want      time.Duration
	}{
		{name: "exponent is capped at 4", errorType: domain.ErrorTypeNetwork, attempts: 9, jitter: 1, want: 960 * time.Second},
		{name: "rate limit base", errorType: domain.ErrorTypeRateLimit, attempts: 0, jitter: 1, want: 300 * time.Second},
		{name: "api error", errorType: domain.ErrorTypeAPIError, attempts: 1, jitter: 1, want: 360 * time.Second},
		{name: "unrecognized uses unknown", errorType: domain.ErrorType("mystery"), attempts: 0, jitter: 1, want: 300 * time.Second},
		{name: "floor of 30 seconds", errorType: domain.ErrorTypeNetwork, attempts: 0, jitter: 0.1, want: 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.errorType, tt.attempts, tt.jitter))
		})
	}
}

func failedMovement(errorType domain.ErrorType, attempts int, since time.Duration) *domain.StockMovement {
	movement := domain.NewStockMovement(1, 2, "SKU-1", "loc-a", "A1", "loc-b", "B1", 1, domain.MovementManualTransfer, "")
	last := time.Now().UTC().Add(-since)
	movement.Attempts = attempts
	movement.LastSyncAttemptAt = &last
	movement.MarkFailed(errorType, string(errorType))
	return movement
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name      string
		errorType domain.ErrorType
		attempts  int
		since     time.Duration
		want      bool
	}{
		{name: "network after cooldown", errorType: domain.ErrorTypeNetwork, attempts: 1, since: 6 * time.Minute, want: true},
		{name: "cooldown applies before category wait", errorType: domain.ErrorTypeNetwork, attempts: 1, since: 3 * time.Minute, want: false},
		{name: "network cap reached", errorType: domain.ErrorTypeNetwork, attempts: 3, since: time.Hour, want: false},
		{name: "timeout min wait", errorType: domain.ErrorTypeTimeout, attempts: 1, since: 5 * time.Minute, want: true},
		{name: "rate limit waits 10 minutes", errorType: domain.ErrorTypeRateLimit, attempts: 4, since: 8 * time.Minute, want: false},
		{name: "rate limit fifth attempt", errorType: domain.ErrorTypeRateLimit, attempts: 4, since: 11 * time.Minute, want: true},
		{name: "product not found never retried", errorType: domain.ErrorTypeProductNotFound, attempts: 1, since: 24 * 30 * time.Hour, want: false},
		{name: "auth never retried after one", errorType: domain.ErrorTypeAuth, attempts: 1, since: time.Hour, want: false},
		{name: "permanently failed never retried", errorType: domain.ErrorTypePermanentlyFailed, attempts: 0, since: time.Hour, want: false},
	}

	scheduler := NewScheduler(repository.NewInMemoryStore(), &fakeEnqueuer{}, 0, 0, zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := failedMovement(tt.errorType, tt.attempts, tt.since)
			assert.Equal(t, tt.want, scheduler.ShouldRetry(record))
		})
	}
}

func TestShouldRetry_SyncedRecord(t *testing.T) {
	scheduler := NewScheduler(repository.NewInMemoryStore(), &fakeEnqueuer{}, 0, 0, zap.NewNop())
	record := failedMovement(domain.ErrorTypeNetwork, 1, time.Hour)
	record.MarkSynced(time.Now(), nil)

	assert.False(t, scheduler.ShouldRetry(record))
}

func TestScheduleRetry(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	enqueuer := &fakeEnqueuer{}
	scheduler := NewScheduler(store, enqueuer, 0, 0, zap.NewNop())

	record := failedMovement(domain.ErrorTypeNetwork, 1, 10*time.Minute)
	require.NoError(t, store.CreateMovement(ctx, record))

	enqueueAt, err := scheduler.ScheduleRetry(ctx, record)
	require.NoError(t, err)
	assert.True(t, enqueueAt.After(time.Now()))

	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, record.ID, enqueuer.tasks[0].RecordID)
	assert.Equal(t, domain.KindMovement, enqueuer.tasks[0].Kind)
	assert.GreaterOrEqual(t, enqueuer.delays[0], 96*time.Second)
	assert.LessOrEqual(t, enqueuer.delays[0], 144*time.Second)

	stored, err := store.FindByID(ctx, domain.KindMovement, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.State().Status)

	// already pending: the CAS refuses a second schedule
	_, err = scheduler.ScheduleRetry(ctx, failedMovement(domain.ErrorTypeNetwork, 1, 10*time.Minute))
	assert.Error(t, err)
}

func TestScheduleRetry_EnqueueFailureRevertsStatus(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	scheduler := NewScheduler(store, &fakeEnqueuer{err: errors.New("broker down")}, 0, 0, zap.NewNop())

	record := failedMovement(domain.ErrorTypeTimeout, 1, 10*time.Minute)
	require.NoError(t, store.CreateMovement(ctx, record))

	_, err := scheduler.ScheduleRetry(ctx, record)
	assert.Error(t, err)

	stored, err := store.FindByID(ctx, domain.KindMovement, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.State().Status)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	enqueuer := &fakeEnqueuer{}
	scheduler := NewScheduler(store, enqueuer, 24*time.Hour, 15*time.Minute, zap.NewNop())

	eligible := failedMovement(domain.ErrorTypeNetwork, 1, 10*time.Minute)
	capped := failedMovement(domain.ErrorTypeProductNotFound, 1, 2*time.Hour)
	cooling := failedMovement(domain.ErrorTypeNetwork, 1, time.Minute)
	old := failedMovement(domain.ErrorTypeNetwork, 1, 10*time.Minute)
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	for _, movement := range []*domain.StockMovement{eligible, capped, cooling, old} {
		require.NoError(t, store.CreateMovement(ctx, movement))
	}

	report, err := scheduler.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, CategoryCounts{Found: 2, Queued: 1, Skipped: 1}, *report.ByCategory[domain.ErrorTypeNetwork])
	assert.Equal(t, CategoryCounts{Found: 1, Queued: 0, Skipped: 1}, *report.ByCategory[domain.ErrorTypeProductNotFound])

	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, eligible.ID, enqueuer.tasks[0].RecordID)
}

func TestResync(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	enqueuer := &fakeEnqueuer{}
	scheduler := NewScheduler(store, enqueuer, 0, 0, zap.NewNop())

	capped := failedMovement(domain.ErrorTypeProductNotFound, 1, time.Minute)
	require.NoError(t, store.CreateMovement(ctx, capped))

	record, err := scheduler.Resync(ctx, domain.KindMovement, capped.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.State().Status)
	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, time.Duration(0), enqueuer.delays[0])

	synced := failedMovement(domain.ErrorTypeNetwork, 1, time.Minute)
	synced.MarkSynced(time.Now(), nil)
	require.NoError(t, store.CreateMovement(ctx, synced))

	_, err = scheduler.Resync(ctx, domain.KindMovement, synced.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadySynced)

	_, err = scheduler.Resync(ctx, domain.KindScan, 999)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func abandonedMovement(claimedAgo time.Duration) *domain.StockMovement {
	movement := domain.NewStockMovement(1, 2, "SKU-1", "loc-a", "A1", "loc-b", "B1", 1, domain.MovementManualTransfer, "")
	movement.BeginAttempt(time.Now().UTC().Add(-claimedAgo))
	return movement
}

func TestSweep_RecoversAbandonedClaims(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	enqueuer := &fakeEnqueuer{}
	scheduler := NewScheduler(store, enqueuer, 24*time.Hour, 15*time.Minute, zap.NewNop())

	abandoned := abandonedMovement(2 * time.Hour)
	inFlight := abandonedMovement(time.Minute)
	require.NoError(t, store.CreateMovement(ctx, abandoned))
	require.NoError(t, store.CreateMovement(ctx, inFlight))

	report, err := scheduler.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Recovered)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, CategoryCounts{Found: 1, Queued: 1}, *report.ByCategory[domain.ErrorTypeUnknown])

	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, abandoned.ID, enqueuer.tasks[0].RecordID)

	stored, err := store.FindByID(ctx, domain.KindMovement, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.State().Status)
	assert.Equal(t, domain.StaleClaimMessage, stored.State().ErrorMessage)
	assert.Equal(t, 1, stored.State().Attempts)

	stored, err = store.FindByID(ctx, domain.KindMovement, inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.State().Status)
}

func TestResync_ProcessingRecord(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	enqueuer := &fakeEnqueuer{}
	scheduler := NewScheduler(store, enqueuer, 24*time.Hour, 15*time.Minute, zap.NewNop())

	inFlight := abandonedMovement(time.Minute)
	require.NoError(t, store.CreateMovement(ctx, inFlight))

	_, err := scheduler.Resync(ctx, domain.KindMovement, inFlight.ID)
	assert.ErrorIs(t, err, domain.ErrConcurrentlyClaimed)
	assert.Empty(t, enqueuer.tasks)

	abandoned := abandonedMovement(2 * time.Hour)
	require.NoError(t, store.CreateMovement(ctx, abandoned))

	record, err := scheduler.Resync(ctx, domain.KindMovement, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.State().Status)
	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, abandoned.ID, enqueuer.tasks[0].RecordID)
}

func TestRunnerCeiling(t *testing.T) {
	assert.Equal(t, 5, MaxPolicyAttempts())
	assert.Equal(t, 6, RunnerCeiling(3))
	assert.Equal(t, 6, RunnerCeiling(5))
	assert.Equal(t, 10, RunnerCeiling(10))
}
