package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanRecord(t *testing.T) {
	record := NewScanRecord(7, 42, "SKU-001", "5012345678900", 3, ScanDecrease)

	assert.Equal(t, KindScan, record.Kind())
	assert.Equal(t, "SKU-001", record.ProductSKU())
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, 0, record.Attempts)
	assert.NotNil(t, record.Metadata)
	assert.Equal(t, -3, record.Delta())
	assert.False(t, record.IsTerminal())
}

func TestScanRecord_IncreaseDelta(t *testing.T) {
	record := NewScanRecord(7, 42, "SKU-001", "5012345678900", 4, ScanIncrease)
	assert.Equal(t, 4, record.Delta())
}

func TestSyncState_Lifecycle(t *testing.T) {
	movement := &StockMovement{SKU: "SKU-001", Quantity: 2, SyncState: NewPendingState(Metadata{"auto_selected_source": true})}
	state := movement.State()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	state.BeginAttempt(now)
	assert.Equal(t, StatusProcessing, state.Status)
	assert.Equal(t, 1, state.Attempts)
	require.NotNil(t, state.LastSyncAttemptAt)
	assert.Equal(t, now, *state.LastSyncAttemptAt)

	state.MarkFailed(ErrorTypeNetwork, "connection reset")
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, 1, state.Attempts)
	assert.Nil(t, state.ProcessedAt)

	state.ResetForRetry()
	assert.Equal(t, StatusPending, state.Status)
	assert.Equal(t, ErrorTypeNetwork, state.ErrorType)

	later := now.Add(10 * time.Minute)
	state.BeginAttempt(later)
	state.MarkSynced(later, Metadata{"external_response": "ok"})

	assert.Equal(t, StatusSynced, state.Status)
	assert.Equal(t, 2, state.Attempts)
	assert.Equal(t, ErrorTypeNone, state.ErrorType)
	assert.Empty(t, state.ErrorMessage)
	require.NotNil(t, state.ProcessedAt)
	assert.True(t, state.IsTerminal())
	assert.Equal(t, true, state.Metadata["auto_selected_source"])
	assert.Equal(t, "ok", state.Metadata["external_response"])
}

func TestParseRecordKind(t *testing.T) {
	kind, err := ParseRecordKind("movement")
	assert.NoError(t, err)
	assert.Equal(t, KindMovement, kind)

	_, err = ParseRecordKind("order")
	assert.Error(t, err)
}

func TestParseMovementType(t *testing.T) {
	movementType, ok := ParseMovementType("bay_refill")
	assert.True(t, ok)
	assert.True(t, movementType.IsRefill())

	movementType, ok = ParseMovementType("manual_transfer")
	assert.True(t, ok)
	assert.False(t, movementType.IsRefill())

	_, ok = ParseMovementType("teleport")
	assert.False(t, ok)
}

func TestLocation_MarkUsed(t *testing.T) {
	location := &Location{ExternalID: "loc-1", Code: "FLOOR", IsActive: true}
	now := time.Now()

	location.MarkUsed(now)
	location.MarkUsed(now)

	assert.Equal(t, 2, location.UseCount)
	assert.Equal(t, now, *location.LastUsedAt)
}

func TestSyncState_ExpireClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	state := NewPendingState(nil)
	state.BeginAttempt(now)
	assert.False(t, state.IsStaleClaim(now.Add(-time.Minute)))
	assert.True(t, state.IsStaleClaim(now.Add(time.Minute)))

	state.ExpireClaim()
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, ErrorTypeUnknown, state.ErrorType)
	assert.Equal(t, StaleClaimMessage, state.ErrorMessage)
	assert.Equal(t, 1, state.Attempts)
	assert.False(t, state.IsStaleClaim(now.Add(time.Minute)))

	earlier := NewPendingState(nil)
	earlier.BeginAttempt(now)
	earlier.MarkFailed(ErrorTypeRateLimit, "too many requests")
	earlier.BeginAttempt(now.Add(time.Minute))
	earlier.ExpireClaim()
	assert.Equal(t, ErrorTypeRateLimit, earlier.ErrorType)
}
