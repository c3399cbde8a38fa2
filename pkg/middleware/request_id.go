package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"stock-sync-service/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey = "request_id"
	// ReplayedHeader marks a response served from the idempotency store
	ReplayedHeader = "X-Idempotent-Replay"

	requestIDKeyPrefix = "idempotency:"
)

var ErrRequestIDNotFound = errors.New("request ID not found")

// CachedResponse is a write response kept for replay
type CachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// RequestIDStore stores processed request IDs for idempotency
type RequestIDStore interface {
	// Store stores the response produced for a request ID
	Store(ctx context.Context, requestID string, response CachedResponse, ttl time.Duration) error
	// Get retrieves a stored response by request ID
	Get(ctx context.Context, requestID string) (*CachedResponse, error)
}

// CacheRequestIDStore keeps responses in the shared cache (Redis or in-memory)
type CacheRequestIDStore struct {
	cache cache.Cache
}

// NewCacheRequestIDStore creates a request ID store on top of c
func NewCacheRequestIDStore(c cache.Cache) *CacheRequestIDStore {
	return &CacheRequestIDStore{cache: c}
}

func (s *CacheRequestIDStore) Store(ctx context.Context, requestID string, response CachedResponse, ttl time.Duration) error {
	return cache.SetJSON(ctx, s.cache, requestIDKeyPrefix+requestID, response, ttl)
}

func (s *CacheRequestIDStore) Get(ctx context.Context, requestID string) (*CachedResponse, error) {
	var response CachedResponse
	if err := cache.GetJSON(ctx, s.cache, requestIDKeyPrefix+requestID, &response); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrRequestIDNotFound
		}
		return nil, err
	}
	return &response, nil
}

// RequestIDMiddleware extracts or generates X-Request-ID header
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			logger.Debug("Generated new request ID",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}

		c.Set(RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDContextKey, requestID))
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDContextKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// IdempotencyMiddleware replays the stored response for a repeated X-Request-ID
// on write requests, and stores successful write responses for later replay
func IdempotencyMiddleware(store RequestIDStore, logger *zap.Logger, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWrite(c.Request.Method) {
			c.Next()
			return
		}

		requestID := GetRequestID(c)
		if requestID == "" {
			c.Next()
			return
		}
		key := c.Request.Method + ":" + c.Request.URL.Path + ":" + requestID

		cached, err := store.Get(c.Request.Context(), key)
		switch {
		case err == nil && len(cached.Body) > 0:
			logger.Info("Duplicate request detected, returning cached response",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.Header(ReplayedHeader, "true")
			c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
			c.Abort()
			return
		case err != nil && !errors.Is(err, ErrRequestIDNotFound):
			// fail open
			logger.Warn("Error reading idempotency store",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}

		writer := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices || len(writer.body) == 0 {
			return
		}

		if err := store.Store(c.Request.Context(), key, CachedResponse{Status: status, Body: writer.body}, ttl); err != nil {
			logger.Warn("Failed to store response for idempotency",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the response body
type responseWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, []byte(s)...)
	return w.ResponseWriter.WriteString(s)
}
