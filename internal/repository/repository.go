package repository

import (
	"context"
	"time"

	"stock-sync-service/internal/domain"
)

// SyncRecordRepository persists scan records and stock movements
type SyncRecordRepository interface {
	CreateScan(ctx context.Context, record *domain.ScanRecord) error
	CreateMovement(ctx context.Context, movement *domain.StockMovement) error
	FindByID(ctx context.Context, kind domain.RecordKind, id int64) (domain.SyncRecord, error)
	// SaveState writes the lifecycle fields of record
	SaveState(ctx context.Context, record domain.SyncRecord) error
	// BeginAttempt atomically moves a record into processing and counts the attempt.
	// It reports false when the record is terminal or another worker holds a claim
	// newer than staleBefore.
	BeginAttempt(ctx context.Context, kind domain.RecordKind, id int64, now, staleBefore time.Time) (bool, error)
	// TransitionStatus is a compare-and-swap on sync_status
	TransitionStatus(ctx context.Context, kind domain.RecordKind, id int64, from []domain.SyncStatus, to domain.SyncStatus) (bool, error)
	// ExpireClaim moves a record whose processing claim is older than staleBefore
	// to failed. It reports false when the claim is fresh or already gone.
	ExpireClaim(ctx context.Context, kind domain.RecordKind, id int64, staleBefore time.Time) (bool, error)
	// ListRetryable returns records created at or after since that are failed or
	// hold a processing claim older than staleBefore, oldest first
	ListRetryable(ctx context.Context, since, staleBefore time.Time) ([]domain.SyncRecord, error)
}

// LocationRepository persists the ranking view of external locations
type LocationRepository interface {
	FindLocation(ctx context.Context, externalID string) (*domain.Location, error)
	UpsertLocation(ctx context.Context, location *domain.Location) error
	// MarkLocationUsed creates the location if needed and bumps its usage counters
	MarkLocationUsed(ctx context.Context, externalID, code string, now time.Time) error
	ListActiveLocations(ctx context.Context) ([]*domain.Location, error)
}

// Store is the local ledger used by the sync engine
type Store interface {
	SyncRecordRepository
	LocationRepository
	// WithinTx runs fn against a store whose writes commit or roll back together
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

func containsStatus(statuses []domain.SyncStatus, status domain.SyncStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
