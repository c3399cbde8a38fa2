package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *StandardError
		want int
	}{
		{NewValidationError("quantity must be at least 1", "quantity"), http.StatusBadRequest},
		{NewInsufficientStock(3, 5), http.StatusBadRequest},
		{NewNoCandidateLocation("SKU-1"), http.StatusBadRequest},
		{NewForbidden("stock.refill"), http.StatusForbidden},
		{NewUnauthorized("invalid token"), http.StatusUnauthorized},
		{NewRecordNotFound("movement", 4), http.StatusNotFound},
		{NewProductNotFound("SKU-1"), http.StatusNotFound},
		{NewAlreadySynced("scan", 4), http.StatusConflict},
		{NewGatewayUnavailable(fmt.Errorf("timeout")), http.StatusBadGateway},
		{NewQueueUnavailable(fmt.Errorf("broker down")), http.StatusServiceUnavailable},
		{NewInternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("execute transfer: %w", NewForbidden("stock.transfer"))

	stdErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "Forbidden", stdErr.Code)

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
