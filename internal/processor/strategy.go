package processor

import (
	"context"
	"fmt"

	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/gateway"
)

// StockGateway is the part of the external inventory client the strategies use
type StockGateway interface {
	StockByLocation(ctx context.Context, sku string) ([]domain.CandidateLocation, error)
	SetStockLevel(ctx context.Context, sku, locationID string, level int) (*gateway.StockLevelChange, error)
	TransferStock(ctx context.Context, req gateway.TransferStockRequest) (*gateway.TransferStockResponse, error)
}

// Strategy applies one record kind to the external inventory and returns the
// response echo to merge into the record's metadata
type Strategy interface {
	Apply(ctx context.Context, record domain.SyncRecord) (domain.Metadata, error)
}

// ScanStrategy applies a scan as an absolute stock level at one location
type ScanStrategy struct {
	gateway    StockGateway
	locationID string
}

func NewScanStrategy(gw StockGateway, locationID string) *ScanStrategy {
	if locationID == "" {
		locationID = domain.DefaultLocationID
	}
	return &ScanStrategy{gateway: gw, locationID: locationID}
}

func (s *ScanStrategy) Apply(ctx context.Context, record domain.SyncRecord) (domain.Metadata, error) {
	scan, ok := record.(*domain.ScanRecord)
	if !ok {
		return nil, fmt.Errorf("scan strategy cannot apply %s record", record.Kind())
	}

	candidates, err := s.gateway.StockByLocation(ctx, scan.SKU)
	if err != nil {
		return nil, err
	}

	current, found := findCandidate(candidates, s.locationID)
	if !found {
		return nil, fmt.Errorf("sku %s not found at location %s", scan.SKU, s.locationID)
	}

	level := current.StockLevel + scan.Delta()
	if level < 0 {
		return nil, fmt.Errorf("insufficient stock for %s: stock level %d, scanned %d", scan.SKU, current.StockLevel, scan.Quantity)
	}

	change, err := s.gateway.SetStockLevel(ctx, scan.SKU, s.locationID, level)
	if err != nil {
		return nil, err
	}

	return domain.Metadata{
		"external_location_id":        s.locationID,
		"external_stock_level_before": current.StockLevel,
		"external_stock_level":        change.StockLevel,
	}, nil
}

// MovementStrategy applies a movement as an external stock transfer
type MovementStrategy struct {
	gateway StockGateway
}

func NewMovementStrategy(gw StockGateway) *MovementStrategy {
	return &MovementStrategy{gateway: gw}
}

func (s *MovementStrategy) Apply(ctx context.Context, record domain.SyncRecord) (domain.Metadata, error) {
	movement, ok := record.(*domain.StockMovement)
	if !ok {
		return nil, fmt.Errorf("movement strategy cannot apply %s record", record.Kind())
	}

	response, err := s.gateway.TransferStock(ctx, gateway.TransferStockRequest{
		SKU:            movement.SKU,
		FromLocationID: movement.FromLocationID,
		Quantity:       movement.Quantity,
		ToLocationID:   movement.ToLocationID,
	})
	if err != nil {
		return nil, err
	}

	return domain.Metadata{
		"external_transfer_id":      response.TransferID,
		"external_from_stock_level": response.FromStockLevel,
		"external_to_stock_level":   response.ToStockLevel,
		"external_quantity_applied": response.QuantityApplied,
	}, nil
}

func findCandidate(candidates []domain.CandidateLocation, id string) (domain.CandidateLocation, bool) {
	for _, candidate := range candidates {
		if candidate.ID == id {
			return candidate, true
		}
	}
	return domain.CandidateLocation{}, false
}
