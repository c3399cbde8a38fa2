package domain

import "time"

// ScanAction is the direction of a scan-based stock change
type ScanAction string

const (
	ScanDecrease ScanAction = "decrease"
	ScanIncrease ScanAction = "increase"
)

// ScanRecord is a stock change captured by scanning a single barcode
type ScanRecord struct {
	ID        int64
	UserID    int64
	ProductID int64
	SKU       string
	Barcode   string
	Quantity  int
	Action    ScanAction
	CreatedAt time.Time
	SyncState
}

// NewScanRecord creates a pending scan record
func NewScanRecord(userID, productID int64, sku, barcode string, quantity int, action ScanAction) *ScanRecord {
	return &ScanRecord{
		UserID:    userID,
		ProductID: productID,
		SKU:       sku,
		Barcode:   barcode,
		Quantity:  quantity,
		Action:    action,
		CreatedAt: time.Now().UTC(),
		SyncState: NewPendingState(nil),
	}
}

func (r *ScanRecord) Kind() RecordKind   { return KindScan }
func (r *ScanRecord) RecordID() int64    { return r.ID }
func (r *ScanRecord) ProductSKU() string { return r.SKU }
func (r *ScanRecord) State() *SyncState  { return &r.SyncState }

// Delta returns the signed change the scan applies to the stock level
func (r *ScanRecord) Delta() int {
	if r.Action == ScanIncrease {
		return r.Quantity
	}
	return -r.Quantity
}
