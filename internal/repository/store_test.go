package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stock-sync-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewInMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func newMovement() *domain.StockMovement {
	return domain.NewStockMovement(7, 42, "SKU-001", "loc-a", "A1", domain.DefaultLocationID, "DEFAULT", 5, domain.MovementBayRefill, "")
}

func TestStore_CreateAndFind(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			scan := domain.NewScanRecord(7, 42, "SKU-001", "5012345678900", 2, domain.ScanDecrease)
			require.NoError(t, store.CreateScan(ctx, scan))
			assert.NotZero(t, scan.ID)

			movement := newMovement()
			movement.MergeMetadata(domain.Metadata{"requested_quantity": 8})
			require.NoError(t, store.CreateMovement(ctx, movement))
			assert.NotZero(t, movement.ID)

			found, err := store.FindByID(ctx, domain.KindScan, scan.ID)
			require.NoError(t, err)
			foundScan, ok := found.(*domain.ScanRecord)
			require.True(t, ok)
			assert.Equal(t, "5012345678900", foundScan.Barcode)
			assert.Equal(t, domain.ScanDecrease, foundScan.Action)
			assert.Equal(t, domain.StatusPending, foundScan.Status)
			assert.Equal(t, 0, foundScan.Attempts)

			found, err = store.FindByID(ctx, domain.KindMovement, movement.ID)
			require.NoError(t, err)
			foundMovement, ok := found.(*domain.StockMovement)
			require.True(t, ok)
			assert.Equal(t, "loc-a", foundMovement.FromLocationID)
			assert.Equal(t, domain.DefaultLocationID, foundMovement.ToLocationID)
			assert.Equal(t, domain.MovementBayRefill, foundMovement.Type)
			assert.EqualValues(t, 8, foundMovement.Metadata["requested_quantity"])

			_, err = store.FindByID(ctx, domain.KindScan, 9999)
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		})
	}
}

func TestStore_BeginAttempt(t *testing.T) {
	now := time.Now().UTC()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			movement := newMovement()
			require.NoError(t, store.CreateMovement(ctx, movement))

			claimed, err := store.BeginAttempt(ctx, domain.KindMovement, movement.ID, now, now.Add(-15*time.Minute))
			require.NoError(t, err)
			assert.True(t, claimed)

			// a fresh claim blocks a second worker
			claimed, err = store.BeginAttempt(ctx, domain.KindMovement, movement.ID, now, now.Add(-15*time.Minute))
			require.NoError(t, err)
			assert.False(t, claimed)

			// a stale claim is taken over
			later := now.Add(20 * time.Minute)
			claimed, err = store.BeginAttempt(ctx, domain.KindMovement, movement.ID, later, later.Add(-15*time.Minute))
			require.NoError(t, err)
			assert.True(t, claimed)

			record, err := store.FindByID(ctx, domain.KindMovement, movement.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusProcessing, record.State().Status)
			assert.Equal(t, 2, record.State().Attempts)
			require.NotNil(t, record.State().LastSyncAttemptAt)
			assert.WithinDuration(t, later, *record.State().LastSyncAttemptAt, time.Millisecond)
		})
	}
}

func TestStore_SyncedIsAbsorbing(t *testing.T) {
	now := time.Now().UTC()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			scan := domain.NewScanRecord(7, 42, "SKU-001", "5012345678900", 1, domain.ScanIncrease)
			require.NoError(t, store.CreateScan(ctx, scan))

			scan.BeginAttempt(now)
			scan.MarkSynced(now, domain.Metadata{"stock_level": 11})
			require.NoError(t, store.SaveState(ctx, scan))

			claimed, err := store.BeginAttempt(ctx, domain.KindScan, scan.ID, now, now)
			require.NoError(t, err)
			assert.False(t, claimed)

			swapped, err := store.TransitionStatus(ctx, domain.KindScan, scan.ID,
				[]domain.SyncStatus{domain.StatusSynced, domain.StatusFailed}, domain.StatusPending)
			require.NoError(t, err)
			assert.False(t, swapped)

			record, err := store.FindByID(ctx, domain.KindScan, scan.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusSynced, record.State().Status)
			assert.NotNil(t, record.State().ProcessedAt)
			assert.EqualValues(t, 11, record.State().Metadata["stock_level"])
		})
	}
}

func TestStore_TransitionStatus(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			movement := newMovement()
			movement.MarkFailed(domain.ErrorTypeNetwork, "connection refused")
			require.NoError(t, store.CreateMovement(ctx, movement))

			swapped, err := store.TransitionStatus(ctx, domain.KindMovement, movement.ID,
				[]domain.SyncStatus{domain.StatusPending}, domain.StatusProcessing)
			require.NoError(t, err)
			assert.False(t, swapped)

			swapped, err = store.TransitionStatus(ctx, domain.KindMovement, movement.ID,
				[]domain.SyncStatus{domain.StatusFailed}, domain.StatusPending)
			require.NoError(t, err)
			assert.True(t, swapped)

			record, err := store.FindByID(ctx, domain.KindMovement, movement.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, record.State().Status)
			assert.Equal(t, domain.ErrorTypeNetwork, record.State().ErrorType)
		})
	}
}

func TestStore_ConcurrentClaimsSingleWinner(t *testing.T) {
	now := time.Now().UTC()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			movement := newMovement()
			require.NoError(t, store.CreateMovement(ctx, movement))

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					claimed, err := store.BeginAttempt(ctx, domain.KindMovement, movement.ID, now, now.Add(-time.Minute))
					assert.NoError(t, err)
					if claimed {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, wins)
		})
	}
}

func TestStore_ListRetryable(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			now := time.Now().UTC()

			old := newMovement()
			old.CreatedAt = now.Add(-48 * time.Hour)
			old.MarkFailed(domain.ErrorTypeTimeout, "timeout")
			require.NoError(t, store.CreateMovement(ctx, old))

			recent := newMovement()
			recent.MarkFailed(domain.ErrorTypeNetwork, "network unreachable")
			require.NoError(t, store.CreateMovement(ctx, recent))

			scan := domain.NewScanRecord(7, 42, "SKU-001", "5012345678900", 1, domain.ScanDecrease)
			scan.MarkFailed(domain.ErrorTypeAuth, "unauthorized")
			require.NoError(t, store.CreateScan(ctx, scan))

			pending := newMovement()
			require.NoError(t, store.CreateMovement(ctx, pending))

			abandoned := newMovement()
			abandoned.BeginAttempt(now.Add(-2 * time.Hour))
			require.NoError(t, store.CreateMovement(ctx, abandoned))

			inFlight := newMovement()
			inFlight.BeginAttempt(now.Add(-time.Minute))
			require.NoError(t, store.CreateMovement(ctx, inFlight))

			records, err := store.ListRetryable(ctx, now.Add(-24*time.Hour), now.Add(-15*time.Minute))
			require.NoError(t, err)

			var movementIDs, scanIDs []int64
			for _, record := range records {
				if record.Kind() == domain.KindScan {
					scanIDs = append(scanIDs, record.RecordID())
				} else {
					movementIDs = append(movementIDs, record.RecordID())
				}
			}
			assert.ElementsMatch(t, []int64{recent.ID, abandoned.ID}, movementIDs)
			assert.Equal(t, []int64{scan.ID}, scanIDs)
		})
	}
}

func TestStore_ExpireClaim(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			now := time.Now().UTC()
			staleBefore := now.Add(-15 * time.Minute)

			abandoned := newMovement()
			abandoned.BeginAttempt(now.Add(-2 * time.Hour))
			require.NoError(t, store.CreateMovement(ctx, abandoned))

			inFlight := newMovement()
			inFlight.BeginAttempt(now.Add(-time.Minute))
			require.NoError(t, store.CreateMovement(ctx, inFlight))

			expired, err := store.ExpireClaim(ctx, domain.KindMovement, abandoned.ID, staleBefore)
			require.NoError(t, err)
			assert.True(t, expired)

			found, err := store.FindByID(ctx, domain.KindMovement, abandoned.ID)
			require.NoError(t, err)
			state := found.State()
			assert.Equal(t, domain.StatusFailed, state.Status)
			assert.Equal(t, domain.ErrorTypeUnknown, state.ErrorType)
			assert.Equal(t, domain.StaleClaimMessage, state.ErrorMessage)
			assert.Equal(t, 1, state.Attempts)

			expired, err = store.ExpireClaim(ctx, domain.KindMovement, abandoned.ID, staleBefore)
			require.NoError(t, err)
			assert.False(t, expired, "an expired claim is not expired twice")

			expired, err = store.ExpireClaim(ctx, domain.KindMovement, inFlight.ID, staleBefore)
			require.NoError(t, err)
			assert.False(t, expired)
		})
	}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			boom := errors.New("boom")

			var createdID int64
			err := store.WithinTx(ctx, func(tx Store) error {
				movement := newMovement()
				if err := tx.CreateMovement(ctx, movement); err != nil {
					return err
				}
				createdID = movement.ID
				if err := tx.MarkLocationUsed(ctx, "loc-a", "A1", time.Now()); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			_, err = store.FindByID(ctx, domain.KindMovement, createdID)
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
			_, err = store.FindLocation(ctx, "loc-a")
			assert.ErrorIs(t, err, domain.ErrLocationNotFound)

			err = store.WithinTx(ctx, func(tx Store) error {
				return tx.CreateMovement(ctx, newMovement())
			})
			require.NoError(t, err)
		})
	}
}

func TestStore_Locations(t *testing.T) {
	now := time.Now().UTC()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.UpsertLocation(ctx, &domain.Location{ExternalID: "loc-b", Code: "B1", IsActive: true}))
			require.NoError(t, store.UpsertLocation(ctx, &domain.Location{ExternalID: "loc-off", Code: "Z9", IsActive: false}))
			require.NoError(t, store.MarkLocationUsed(ctx, "loc-a", "A1", now))
			require.NoError(t, store.MarkLocationUsed(ctx, "loc-a", "", now.Add(time.Minute)))

			location, err := store.FindLocation(ctx, "loc-a")
			require.NoError(t, err)
			assert.Equal(t, "A1", location.Code)
			assert.Equal(t, 2, location.UseCount)
			assert.True(t, location.IsActive)
			require.NotNil(t, location.LastUsedAt)

			locations, err := store.ListActiveLocations(ctx)
			require.NoError(t, err)
			require.Len(t, locations, 2)
			assert.Equal(t, "loc-a", locations[0].ExternalID)
			assert.Equal(t, "loc-b", locations[1].ExternalID)
		})
	}
}
