package commands

import "stock-sync-service/internal/domain"

// Actor is the authenticated caller of a command
type Actor struct {
	UserID      int64
	Permissions []string
}

// Can reports whether the actor holds permission
func (a Actor) Can(permission string) bool {
	for _, granted := range a.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

// TransferStockCommand represents a request to move stock between two locations
type TransferStockCommand struct {
	Actor          Actor
	ProductID      int64
	SKU            string
	Quantity       int
	Operation      domain.MovementType
	FromLocationID string
	ToLocationID   string
	AutoSelect     bool
	Notes          string
}

// RecordScanCommand represents a barcode scan that changes stock at the default location
type RecordScanCommand struct {
	Actor     Actor
	ProductID int64
	SKU       string
	Barcode   string
	Quantity  int
	Action    domain.ScanAction
}

// TransferResult is what ExecuteTransfer hands back to the caller
type TransferResult struct {
	Movement            *domain.StockMovement
	RequestedQuantity   int
	TransferredQuantity int
	QuantityCapped      bool
	AutoSelectedSource  bool
}

const (
	PermissionRefill   = "stock.refill"
	PermissionTransfer = "stock.transfer"
	PermissionAdjust   = "stock.adjust"
	PermissionScan     = "stock.scan"
	PermissionResync   = "sync.resync"
	PermissionView     = "sync.view"
)

var operationPermissions = map[domain.MovementType]string{
	domain.MovementBayRefill:      PermissionRefill,
	domain.MovementManualTransfer: PermissionTransfer,
	domain.MovementScanAdjustment: PermissionAdjust,
}

// PermissionFor returns the permission required for an operation type
func PermissionFor(operation domain.MovementType) (string, bool) {
	permission, ok := operationPermissions[operation]
	return permission, ok
}
