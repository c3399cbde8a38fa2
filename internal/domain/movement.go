package domain

import "time"

// MovementType tags why stock moved between locations
type MovementType string

const (
	MovementBayRefill      MovementType = "bay_refill"
	MovementManualTransfer MovementType = "manual_transfer"
	MovementScanAdjustment MovementType = "scan_adjustment"
)

// ParseMovementType validates an operation type from a request
func ParseMovementType(value string) (MovementType, bool) {
	switch MovementType(value) {
	case MovementBayRefill, MovementManualTransfer, MovementScanAdjustment:
		return MovementType(value), true
	}
	return "", false
}

// IsRefill reports whether the movement refills the default location
func (t MovementType) IsRefill() bool {
	return t == MovementBayRefill
}

// StockMovement is a location-to-location transfer awaiting sync
type StockMovement struct {
	ID               int64
	UserID           int64
	ProductID        int64
	SKU              string
	FromLocationID   string
	FromLocationCode string
	ToLocationID     string
	ToLocationCode   string
	Quantity         int
	Type             MovementType
	Notes            string
	CreatedAt        time.Time
	SyncState
}

func (m *StockMovement) Kind() RecordKind   { return KindMovement }
func (m *StockMovement) RecordID() int64    { return m.ID }
func (m *StockMovement) ProductSKU() string { return m.SKU }
func (m *StockMovement) State() *SyncState  { return &m.SyncState }

// NewStockMovement creates a pending movement between two locations
func NewStockMovement(userID, productID int64, sku, fromID, fromCode, toID, toCode string, quantity int, movementType MovementType, notes string) *StockMovement {
	return &StockMovement{
		UserID:           userID,
		ProductID:        productID,
		SKU:              sku,
		FromLocationID:   fromID,
		FromLocationCode: fromCode,
		ToLocationID:     toID,
		ToLocationCode:   toCode,
		Quantity:         quantity,
		Type:             movementType,
		Notes:            notes,
		CreatedAt:        time.Now().UTC(),
		SyncState:        NewPendingState(nil),
	}
}
