package domain

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorType is the failure category stored on a sync record
type ErrorType string

const (
	ErrorTypeNone              ErrorType = ""
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeProductNotFound   ErrorType = "product_not_found"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeAPIError          ErrorType = "api_error"
	ErrorTypeUnknown           ErrorType = "unknown"
	ErrorTypePermanentlyFailed ErrorType = "permanently_failed"
)

// StatusCoder is implemented by errors that carry an HTTP status from the external API
type StatusCoder interface {
	HTTPStatusCode() int
}

type classifierRule struct {
	errorType ErrorType
	matches   func(message string) bool
}

// Evaluated top-down, first match wins. A "connection timeout" is a network error.
// Bare status digits are matched only as whole words.
var classifierRules = []classifierRule{
	{ErrorTypeRateLimit, anyOf(containsAny("rate limit", "too many requests"), containsWord("429"))},
	{ErrorTypeNetwork, containsAny("network", "connection")},
	{ErrorTypeTimeout, containsAny("timeout", "deadline exceeded")},
	{ErrorTypeAuth, containsAny("authentication", "unauthorized")},
	{ErrorTypeProductNotFound, anyOf(containsAny("not found"), containsWord("404"))},
	{ErrorTypeValidation, containsAny("insufficient stock", "stock level")},
}

func containsAny(needles ...string) func(string) bool {
	return func(message string) bool {
		for _, needle := range needles {
			if strings.Contains(message, needle) {
				return true
			}
		}
		return false
	}
}

// containsWord matches needle only when it is not part of a longer
// run of letters or digits, so "item 14290" is not a 429
func containsWord(needle string) func(string) bool {
	return func(message string) bool {
		for from := 0; ; {
			i := strings.Index(message[from:], needle)
			if i < 0 {
				return false
			}
			start := from + i
			end := start + len(needle)
			if !isWordByte(message, start-1) && !isWordByte(message, end) {
				return true
			}
			from = start + 1
		}
	}
}

func isWordByte(message string, i int) bool {
	if i < 0 || i >= len(message) {
		return false
	}
	c := message[i]
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c == '_'
}

func anyOf(matchers ...func(string) bool) func(string) bool {
	return func(message string) bool {
		for _, matches := range matchers {
			if matches(message) {
				return true
			}
		}
		return false
	}
}

// ClassifyError maps a failure onto a retry category.
// Message rules are checked first; a status code is used only when none match.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}

	message := strings.ToLower(err.Error())
	for _, rule := range classifierRules {
		if rule.matches(message) {
			return rule.errorType
		}
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return classifyStatus(coder.HTTPStatusCode())
	}

	return ErrorTypeUnknown
}

func classifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusNotFound:
		return ErrorTypeProductNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status >= 300:
		return ErrorTypeAPIError
	default:
		return ErrorTypeUnknown
	}
}
