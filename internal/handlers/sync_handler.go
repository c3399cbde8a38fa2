package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"stock-sync-service/internal/commands"
	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/repository"
	"stock-sync-service/internal/retry"
	apperrors "stock-sync-service/pkg/errors"
	"stock-sync-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is a dependency the health endpoint reports on
type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncHandler exposes the sync engine over HTTP
type SyncHandler struct {
	logger    *zap.Logger
	service   *commands.Service
	scheduler *retry.Scheduler
	store     repository.Store
	checks    map[string]Pinger
}

// NewSyncHandler creates the HTTP handler set
func NewSyncHandler(logger *zap.Logger, service *commands.Service, scheduler *retry.Scheduler, store repository.Store) *SyncHandler {
	return &SyncHandler{
		logger:    logger,
		service:   service,
		scheduler: scheduler,
		store:     store,
		checks:    make(map[string]Pinger),
	}
}

// AddHealthCheck registers a dependency for GET /health
func (h *SyncHandler) AddHealthCheck(name string, p Pinger) {
	h.checks[name] = p
}

// RegisterRoutes mounts the API under group. Routes other than /health require auth.
func (h *SyncHandler) RegisterRoutes(group *gin.RouterGroup, auth gin.HandlerFunc) {
	group.GET("/health", h.Health)

	protected := group.Group("")
	protected.Use(auth)
	{
		protected.POST("/transfers", h.CreateTransfer)
		protected.POST("/scans", h.CreateScan)
		protected.GET("/locations", middleware.RequirePermission(commands.PermissionView), h.ListLocations)

		records := protected.Group("/sync-records")
		{
			records.GET("/:kind/:id", middleware.RequirePermission(commands.PermissionView), h.GetSyncRecord)
			records.POST("/:kind/:id/resync", middleware.RequirePermission(commands.PermissionResync), h.Resync)
		}
		protected.POST("/retry-sweeps", middleware.RequirePermission(commands.PermissionResync), h.RetrySweep)
	}
}

// CreateTransfer handles POST /api/v1/transfers
// @Summary      Record a stock transfer
// @Description  Validates the transfer against live stock, records a pending movement and queues it for sync.
// @Description  Refills always target the default location; with auto_select the source is chosen from the locations holding stock and the quantity is capped to what the source holds.
// @Description  **Idempotency**: send X-Request-ID to get the cached response for a repeated request (valid for the configured TTL).
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string           false  "Request ID for idempotency (UUID)"
// @Param        request       body      TransferRequest  true   "Transfer request"
// @Success      201           {object}  TransferResponse
// @Failure      400           {object}  ErrorResponse  "Validation failed, insufficient stock or no candidate location"
// @Failure      401           {object}  ErrorResponse
// @Failure      403           {object}  ErrorResponse  "Missing permission for the operation type"
// @Failure      404           {object}  ErrorResponse  "Product unknown to the external inventory"
// @Failure      502           {object}  ErrorResponse  "External inventory unavailable"
// @Failure      503           {object}  ErrorResponse  "Task queue unavailable"
// @Router       /transfers [post]
func (h *SyncHandler) CreateTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid transfer request", zap.Error(err))
		_ = c.Error(apperrors.NewInvalidRequest("invalid request body", err.Error()))
		return
	}

	operation, ok := domain.ParseMovementType(req.OperationType)
	if !ok {
		_ = c.Error(apperrors.NewValidationError("operation_type must be bay_refill, manual_transfer or scan_adjustment", "operation_type"))
		return
	}

	autoSelect := true
	if req.AutoSelect != nil {
		autoSelect = *req.AutoSelect
	}

	result, err := h.service.ExecuteTransfer(c.Request.Context(), commands.TransferStockCommand{
		Actor:          actorFrom(c),
		ProductID:      req.ProductID,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
		Operation:      operation,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		AutoSelect:     autoSelect,
		Notes:          req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, newTransferResponse(result))
}

// CreateScan handles POST /api/v1/scans
// @Summary      Record a barcode scan
// @Description  Records a pending scan that changes stock at the default location and queues it for sync.
// @Tags         scans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string       false  "Request ID for idempotency (UUID)"
// @Param        request       body      ScanRequest  true   "Scan request"
// @Success      201           {object}  SyncRecordResponse
// @Failure      400           {object}  ErrorResponse
// @Failure      401           {object}  ErrorResponse
// @Failure      403           {object}  ErrorResponse
// @Failure      503           {object}  ErrorResponse
// @Router       /scans [post]
func (h *SyncHandler) CreateScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid scan request", zap.Error(err))
		_ = c.Error(apperrors.NewInvalidRequest("invalid request body", err.Error()))
		return
	}

	scan, err := h.service.RecordScan(c.Request.Context(), commands.RecordScanCommand{
		Actor:     actorFrom(c),
		ProductID: req.ProductID,
		SKU:       req.SKU,
		Barcode:   req.Barcode,
		Quantity:  req.Quantity,
		Action:    domain.ScanAction(req.Action),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, newSyncRecordResponse(scan))
}

// GetSyncRecord handles GET /api/v1/sync-records/:kind/:id
// @Summary      Get a sync record
// @Tags         sync-records
// @Produce      json
// @Security     BearerAuth
// @Param        kind  path      string  true  "scan or movement"
// @Param        id    path      int     true  "Record id"
// @Success      200   {object}  SyncRecordResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /sync-records/{kind}/{id} [get]
func (h *SyncHandler) GetSyncRecord(c *gin.Context) {
	kind, id, err := recordRef(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	record, err := h.store.FindByID(c.Request.Context(), kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			_ = c.Error(apperrors.NewRecordNotFound(string(kind), id))
			return
		}
		_ = c.Error(apperrors.NewDatabaseError("find sync record", err))
		return
	}

	c.JSON(http.StatusOK, newSyncRecordResponse(record))
}

// Resync handles POST /api/v1/sync-records/:kind/:id/resync
// @Summary      Manually resync a record
// @Description  Puts a failed or pending record back on the queue immediately, ignoring retry caps and cooldowns.
// @Tags         sync-records
// @Produce      json
// @Security     BearerAuth
// @Param        kind  path      string  true  "scan or movement"
// @Param        id    path      int     true  "Record id"
// @Success      202   {object}  SyncRecordResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse  "Already synced or currently processing"
// @Failure      503   {object}  ErrorResponse
// @Router       /sync-records/{kind}/{id}/resync [post]
func (h *SyncHandler) Resync(c *gin.Context) {
	kind, id, err := recordRef(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	record, err := h.scheduler.Resync(c.Request.Context(), kind, id)
	if err != nil {
		_ = c.Error(resyncError(err, kind, id))
		return
	}

	h.logger.Info("Manual resync requested",
		zap.String("kind", string(kind)),
		zap.Int64("record_id", id),
		zap.Int64("user_id", c.GetInt64(middleware.UserIDContextKey)),
	)
	c.JSON(http.StatusAccepted, newSyncRecordResponse(record))
}

// RetrySweep handles POST /api/v1/retry-sweeps
// @Summary      Run a bulk retry sweep
// @Description  Schedules every eligible failed record and returns counts per error category.
// @Tags         sync-records
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  retry.SweepReport
// @Failure      500  {object}  ErrorResponse
// @Router       /retry-sweeps [post]
func (h *SyncHandler) RetrySweep(c *gin.Context) {
	report, err := h.scheduler.Sweep(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.NewDatabaseError("retry sweep", err))
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListLocations handles GET /api/v1/locations
// @Summary      List locations by use
// @Tags         locations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   LocationResponse
// @Router       /locations [get]
func (h *SyncHandler) ListLocations(c *gin.Context) {
	locations, err := h.store.ListActiveLocations(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.NewDatabaseError("list locations", err))
		return
	}

	resp := make([]LocationResponse, 0, len(locations))
	for _, l := range locations {
		resp = append(resp, LocationResponse{
			ExternalID: l.ExternalID,
			Code:       l.Code,
			UseCount:   l.UseCount,
			LastUsedAt: l.LastUsedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /api/v1/health
// @Summary      Health check endpoint
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /health [get]
func (h *SyncHandler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "service": "stock-sync-service"}

	for name, check := range h.checks {
		if err := check.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}

	c.JSON(status, body)
}

func actorFrom(c *gin.Context) commands.Actor {
	return commands.Actor{
		UserID:      c.GetInt64(middleware.UserIDContextKey),
		Permissions: c.GetStringSlice(middleware.PermissionsContextKey),
	}
}

func recordRef(c *gin.Context) (domain.RecordKind, int64, error) {
	kind, err := domain.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return "", 0, apperrors.NewValidationError(err.Error(), "kind")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return "", 0, apperrors.NewValidationError("id must be a positive integer", "id")
	}
	return kind, id, nil
}

func resyncError(err error, kind domain.RecordKind, id int64) error {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return apperrors.NewRecordNotFound(string(kind), id)
	case errors.Is(err, domain.ErrAlreadySynced):
		return apperrors.NewAlreadySynced(string(kind), id)
	case errors.Is(err, domain.ErrConcurrentlyClaimed):
		return apperrors.NewConflict("record is being processed", err.Error())
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.NewQueueUnavailable(err)
}
