package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`   // Error code/type (e.g., "ValidationError", "RecordNotFound")
	Message string `json:"message"` // Human-readable error message
	Details string `json:"details"` // Additional details (field name, validation info, etc.)
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case "InvalidRequest", "ValidationError", "InsufficientStock", "NoCandidateLocation":
		return http.StatusBadRequest
	case "Unauthorized":
		return http.StatusUnauthorized
	case "Forbidden":
		return http.StatusForbidden
	case "RecordNotFound", "ProductNotFound", "ResourceNotFound":
		return http.StatusNotFound
	case "AlreadySynced", "Conflict":
		return http.StatusConflict
	case "GatewayUnavailable":
		return http.StatusBadGateway
	case "QueueUnavailable", "ServiceUnavailable":
		return http.StatusServiceUnavailable
	case "DatabaseError", "InternalError":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// As extracts a StandardError from an error chain
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Common error constructors
func NewInvalidRequest(message, details string) *StandardError {
	return NewStandardError("InvalidRequest", message, details)
}

func NewValidationError(message, field string) *StandardError {
	return NewStandardError("ValidationError", message, fmt.Sprintf("Field: %s", field))
}

func NewForbidden(permission string) *StandardError {
	return NewStandardError("Forbidden", "missing permission for this operation", fmt.Sprintf("Permission: %s", permission))
}

func NewUnauthorized(message string) *StandardError {
	return NewStandardError("Unauthorized", message, "")
}

func NewRecordNotFound(kind string, id int64) *StandardError {
	return NewStandardError("RecordNotFound", "sync record not found", fmt.Sprintf("Kind: %s, ID: %d", kind, id))
}

func NewProductNotFound(sku string) *StandardError {
	return NewStandardError("ProductNotFound", "product not found in external inventory", fmt.Sprintf("SKU: %s", sku))
}

func NewNoCandidateLocation(sku string) *StandardError {
	return NewStandardError("NoCandidateLocation", "no location holds stock for this product", fmt.Sprintf("SKU: %s", sku))
}

func NewInsufficientStock(available, requested int) *StandardError {
	return NewStandardError("InsufficientStock", "insufficient stock available",
		fmt.Sprintf("Available: %d, Requested: %d", available, requested))
}

func NewAlreadySynced(kind string, id int64) *StandardError {
	return NewStandardError("AlreadySynced", "sync record already synced", fmt.Sprintf("Kind: %s, ID: %d", kind, id))
}

func NewConflict(message, details string) *StandardError {
	return NewStandardError("Conflict", message, details)
}

func NewGatewayUnavailable(err error) *StandardError {
	return NewStandardError("GatewayUnavailable", "external inventory unavailable", err.Error())
}

func NewQueueUnavailable(err error) *StandardError {
	return NewStandardError("QueueUnavailable", "failed to enqueue sync task", err.Error())
}

func NewDatabaseError(operation string, err error) *StandardError {
	return NewStandardError("DatabaseError", fmt.Sprintf("database operation failed: %s", operation), err.Error())
}

func NewInternalError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewStandardError("InternalError", message, details)
}
