package gateway

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when the external API answers with something that is not the expected JSON
var ErrMalformedResponse = errors.New("malformed response from inventory API")

// ErrProductNotFound is returned when a SKU has no exact match in the external inventory
var ErrProductNotFound = errors.New("product not found in external inventory")

// GatewayError is a non-200 answer from the external API
type GatewayError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("inventory API %s returned %d: %s", e.Path, e.StatusCode, e.Message)
}

// HTTPStatusCode lets the failure classifier fall back to the status code
func (e *GatewayError) HTTPStatusCode() int {
	return e.StatusCode
}
