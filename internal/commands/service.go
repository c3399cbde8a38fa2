package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/gateway"
	"stock-sync-service/internal/queue"
	"stock-sync-service/internal/repository"
	"stock-sync-service/internal/selector"
	apperrors "stock-sync-service/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CandidateSource fetches live per-location stock for a product
type CandidateSource interface {
	StockByLocation(ctx context.Context, sku string) ([]domain.CandidateLocation, error)
}

// Config holds the location ids the orchestrator resolves refills against
type Config struct {
	DefaultLocationID string
	FloorLocationID   string
}

// Service validates stock intents, records them and queues them for sync
type Service struct {
	store      repository.Store
	candidates CandidateSource
	enqueuer   queue.Enqueuer
	config     Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new command service
func NewService(store repository.Store, candidates CandidateSource, enqueuer queue.Enqueuer, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultLocationID == "" {
		cfg.DefaultLocationID = domain.DefaultLocationID
	}
	return &Service{
		store:      store,
		candidates: candidates,
		enqueuer:   enqueuer,
		config:     cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteTransfer resolves and validates a transfer, then records a pending
// movement and queues it. Nothing is written unless every check passes.
func (s *Service) ExecuteTransfer(ctx context.Context, cmd TransferStockCommand) (*TransferResult, error) {
	permission, ok := PermissionFor(cmd.Operation)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown operation type %q", cmd.Operation), "operation_type")
	}
	if !cmd.Actor.Can(permission) {
		return nil, apperrors.NewForbidden(permission)
	}
	if strings.TrimSpace(cmd.SKU) == "" {
		return nil, apperrors.NewValidationError("product identifier is required", "sku")
	}
	if cmd.Quantity < 1 {
		return nil, apperrors.NewValidationError("quantity must be at least 1", "quantity")
	}

	all, err := s.candidates.StockByLocation(ctx, cmd.SKU)
	if err != nil {
		if errors.Is(err, gateway.ErrProductNotFound) {
			return nil, apperrors.NewProductNotFound(cmd.SKU)
		}
		return nil, apperrors.NewGatewayUnavailable(err)
	}

	candidates := all
	if cmd.Operation.IsRefill() {
		candidates = withStock(all)
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewNoCandidateLocation(cmd.SKU)
	}

	fromID, toID := cmd.FromLocationID, cmd.ToLocationID
	autoSelected := false
	var selected domain.CandidateLocation

	if cmd.Operation.IsRefill() {
		toID = s.config.DefaultLocationID
		if fromID == "" {
			if !cmd.AutoSelect {
				return nil, apperrors.NewValidationError("source location is required when auto-select is off", "from_location_id")
			}
			choice, found := selector.Select(candidates, toID, s.config.FloorLocationID, cmd.Quantity)
			if !found {
				return nil, apperrors.NewNoCandidateLocation(cmd.SKU)
			}
			selected = choice
			fromID = choice.ID
			autoSelected = true
		}
	} else {
		if fromID == "" {
			return nil, apperrors.NewValidationError("source location is required", "from_location_id")
		}
		if toID == "" {
			return nil, apperrors.NewValidationError("destination location is required", "to_location_id")
		}
	}

	if err := validateLocationID(fromID, "from_location_id"); err != nil {
		return nil, err
	}
	if err := validateLocationID(toID, "to_location_id"); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, apperrors.NewValidationError("source and destination must differ", "to_location_id")
	}

	quantity := cmd.Quantity
	if autoSelected {
		quantity = selector.MaxTransferQuantity(selected, cmd.Quantity)
	} else if source, known := findCandidate(all, fromID); known && cmd.Quantity > source.StockLevel {
		return nil, apperrors.NewInsufficientStock(source.StockLevel, cmd.Quantity)
	}
	capped := quantity < cmd.Quantity
	if capped {
		s.logger.Info("Transfer quantity capped to source stock",
			zap.String("sku", cmd.SKU),
			zap.String("from_location_id", fromID),
			zap.Int("requested_quantity", cmd.Quantity),
			zap.Int("transferred_quantity", quantity),
		)
	}

	fromCode := locationName(all, fromID)
	toCode := locationName(all, toID)

	movement := domain.NewStockMovement(cmd.Actor.UserID, cmd.ProductID, cmd.SKU,
		fromID, fromCode, toID, toCode, quantity, cmd.Operation, cmd.Notes)
	movement.MergeMetadata(domain.Metadata{
		"requested_quantity":   cmd.Quantity,
		"transferred_quantity": quantity,
		"quantity_capped":      capped,
		"auto_selected_source": autoSelected,
	})

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateMovement(ctx, movement); err != nil {
			return apperrors.NewDatabaseError("create stock movement", err)
		}
		now := s.now()
		if err := tx.MarkLocationUsed(ctx, fromID, fromCode, now); err != nil {
			return apperrors.NewDatabaseError("mark location used", err)
		}
		if err := tx.MarkLocationUsed(ctx, toID, toCode, now); err != nil {
			return apperrors.NewDatabaseError("mark location used", err)
		}
		if err := s.enqueuer.Enqueue(ctx, queue.NewTask(domain.KindMovement, movement.ID), 0); err != nil {
			return apperrors.NewQueueUnavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock movement recorded",
		zap.Int64("movement_id", movement.ID),
		zap.String("sku", cmd.SKU),
		zap.String("operation", string(cmd.Operation)),
		zap.String("from_location_id", fromID),
		zap.String("to_location_id", toID),
		zap.Int("quantity", quantity),
		zap.Bool("auto_selected_source", autoSelected),
	)

	return &TransferResult{
		Movement:            movement,
		RequestedQuantity:   cmd.Quantity,
		TransferredQuantity: quantity,
		QuantityCapped:      capped,
		AutoSelectedSource:  autoSelected,
	}, nil
}

// RecordScan records a pending scan and queues it
func (s *Service) RecordScan(ctx context.Context, cmd RecordScanCommand) (*domain.ScanRecord, error) {
	if !cmd.Actor.Can(PermissionScan) {
		return nil, apperrors.NewForbidden(PermissionScan)
	}
	if strings.TrimSpace(cmd.SKU) == "" {
		return nil, apperrors.NewValidationError("product identifier is required", "sku")
	}
	if strings.TrimSpace(cmd.Barcode) == "" {
		return nil, apperrors.NewValidationError("barcode is required", "barcode")
	}
	if cmd.Quantity < 1 {
		return nil, apperrors.NewValidationError("quantity must be at least 1", "quantity")
	}
	if cmd.Action != domain.ScanDecrease && cmd.Action != domain.ScanIncrease {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown scan action %q", cmd.Action), "action")
	}

	scan := domain.NewScanRecord(cmd.Actor.UserID, cmd.ProductID, cmd.SKU, cmd.Barcode, cmd.Quantity, cmd.Action)

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateScan(ctx, scan); err != nil {
			return apperrors.NewDatabaseError("create scan record", err)
		}
		if err := s.enqueuer.Enqueue(ctx, queue.NewTask(domain.KindScan, scan.ID), 0); err != nil {
			return apperrors.NewQueueUnavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Scan recorded",
		zap.Int64("scan_id", scan.ID),
		zap.String("sku", cmd.SKU),
		zap.String("action", string(cmd.Action)),
		zap.Int("quantity", cmd.Quantity),
	)
	return scan, nil
}

func validateLocationID(id, field string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("malformed location id %q", id), field)
	}
	return nil
}

func withStock(candidates []domain.CandidateLocation) []domain.CandidateLocation {
	filtered := make([]domain.CandidateLocation, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.StockLevel > 0 {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

func findCandidate(candidates []domain.CandidateLocation, id string) (domain.CandidateLocation, bool) {
	for _, candidate := range candidates {
		if candidate.ID == id {
			return candidate, true
		}
	}
	return domain.CandidateLocation{}, false
}

func locationName(candidates []domain.CandidateLocation, id string) string {
	if candidate, ok := findCandidate(candidates, id); ok {
		return candidate.Name
	}
	return ""
}
