package handlers

import (
	"time"

	"stock-sync-service/internal/commands"
	"stock-sync-service/internal/domain"
)

// ErrorResponse represents an error response
// @Description Error response rendered from a StandardError
type ErrorResponse struct {
	// Error code
	Error string `json:"error" example:"ValidationError"`

	// Human readable message
	Message string `json:"message" example:"quantity must be at least 1"`

	// Extra context, usually the offending field
	Details string `json:"details,omitempty" example:"field: quantity"`
}

// TransferRequest represents the request body for a stock transfer
// @Description Request to move stock between two locations
type TransferRequest struct {
	// Local product id
	ProductID int64 `json:"product_id" example:"42"`

	// SKU as known by the external inventory
	// @Example "SKU-001"
	SKU string `json:"sku" example:"SKU-001"`

	// Units to move (must be >= 1)
	Quantity int `json:"quantity" example:"20"`

	// bay_refill, manual_transfer or scan_adjustment
	OperationType string `json:"operation_type" example:"bay_refill"`

	// Source location (UUID). Optional for refills when auto_select is on.
	FromLocationID string `json:"from_location_id,omitempty" example:"7b2f0c4e-1f44-4c55-9d7a-3f1e0e6f9a21"`

	// Destination location (UUID). Ignored for refills, which always target the default location.
	ToLocationID string `json:"to_location_id,omitempty" example:"00000000-0000-0000-0000-000000000000"`

	// Pick the source automatically. Defaults to true.
	AutoSelect *bool `json:"auto_select,omitempty" example:"true"`

	// Free text notes
	Notes string `json:"notes,omitempty" example:"morning refill"`
}

// ScanRequest represents the request body for a barcode scan
// @Description Request to record a scan-based stock change at the default location
type ScanRequest struct {
	ProductID int64  `json:"product_id" example:"42"`
	SKU       string `json:"sku" example:"SKU-001"`
	Barcode   string `json:"barcode" example:"5012345678900"`
	Quantity  int    `json:"quantity" example:"1"`

	// decrease or increase
	Action string `json:"action" example:"decrease"`
}

// SyncRecordResponse is the audit view of a scan record or stock movement
// @Description Sync record with its lifecycle fields
type SyncRecordResponse struct {
	ID        int64  `json:"id" example:"17"`
	Kind      string `json:"kind" example:"movement"`
	UserID    int64  `json:"user_id" example:"9"`
	ProductID int64  `json:"product_id" example:"42"`
	SKU       string `json:"sku" example:"SKU-001"`
	Quantity  int    `json:"quantity" example:"12"`

	Barcode string `json:"barcode,omitempty"`
	Action  string `json:"action,omitempty"`

	FromLocationID   string `json:"from_location_id,omitempty"`
	FromLocationCode string `json:"from_location_code,omitempty"`
	ToLocationID     string `json:"to_location_id,omitempty"`
	ToLocationCode   string `json:"to_location_code,omitempty"`
	MovementType     string `json:"movement_type,omitempty"`
	Notes            string `json:"notes,omitempty"`

	SyncStatus        string                 `json:"sync_status" example:"pending"`
	SyncAttempts      int                    `json:"sync_attempts" example:"0"`
	LastSyncAttemptAt *time.Time             `json:"last_sync_attempt_at,omitempty"`
	ProcessedAt       *time.Time             `json:"processed_at,omitempty"`
	ErrorType         string                 `json:"error_type,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// TransferResponse represents the response after recording a transfer
// @Description Recorded movement plus the quantity decision
type TransferResponse struct {
	Movement            SyncRecordResponse `json:"movement"`
	RequestedQuantity   int                `json:"requested_quantity" example:"20"`
	TransferredQuantity int                `json:"transferred_quantity" example:"12"`
	QuantityCapped      bool               `json:"quantity_capped" example:"true"`
	AutoSelectedSource  bool               `json:"auto_selected_source" example:"true"`
}

// LocationResponse is one entry of the location ranking
// @Description Location ordered by recent use
type LocationResponse struct {
	ExternalID string     `json:"external_id" example:"7b2f0c4e-1f44-4c55-9d7a-3f1e0e6f9a21"`
	Code       string     `json:"code" example:"BAY-03"`
	UseCount   int        `json:"use_count" example:"14"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func newSyncRecordResponse(record domain.SyncRecord) SyncRecordResponse {
	state := record.State()
	resp := SyncRecordResponse{
		ID:                record.RecordID(),
		Kind:              string(record.Kind()),
		SKU:               record.ProductSKU(),
		SyncStatus:        string(state.Status),
		SyncAttempts:      state.Attempts,
		LastSyncAttemptAt: state.LastSyncAttemptAt,
		ProcessedAt:       state.ProcessedAt,
		ErrorType:         string(state.ErrorType),
		ErrorMessage:      state.ErrorMessage,
		Metadata:          state.Metadata,
	}

	switch r := record.(type) {
	case *domain.ScanRecord:
		resp.UserID = r.UserID
		resp.ProductID = r.ProductID
		resp.Quantity = r.Quantity
		resp.Barcode = r.Barcode
		resp.Action = string(r.Action)
		resp.CreatedAt = r.CreatedAt
	case *domain.StockMovement:
		resp.UserID = r.UserID
		resp.ProductID = r.ProductID
		resp.Quantity = r.Quantity
		resp.FromLocationID = r.FromLocationID
		resp.FromLocationCode = r.FromLocationCode
		resp.ToLocationID = r.ToLocationID
		resp.ToLocationCode = r.ToLocationCode
		resp.MovementType = string(r.Type)
		resp.Notes = r.Notes
		resp.CreatedAt = r.CreatedAt
	}
	return resp
}

func newTransferResponse(result *commands.TransferResult) TransferResponse {
	return TransferResponse{
		Movement:            newSyncRecordResponse(result.Movement),
		RequestedQuantity:   result.RequestedQuantity,
		TransferredQuantity: result.TransferredQuantity,
		QuantityCapped:      result.QuantityCapped,
		AutoSelectedSource:  result.AutoSelectedSource,
	}
}
