package middleware

import (
	"errors"
	"net/http"
	"strings"

	"stock-sync-service/internal/auth"
	apperrors "stock-sync-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// UserIDContextKey holds the authenticated user id (int64)
	UserIDContextKey = "user_id"
	// PermissionsContextKey holds the authenticated user's permissions ([]string)
	PermissionsContextKey = "permissions"
)

// AuthMiddleware validates JWT tokens
func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Missing authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.JSON(http.StatusUnauthorized, apperrors.NewStandardError("Unauthorized", "missing authorization header", "Header: Authorization"))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Warn("Invalid authorization header format",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.JSON(http.StatusUnauthorized, apperrors.NewStandardError("Unauthorized", "invalid authorization header format", "Expected: Bearer <token>"))
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				c.JSON(http.StatusUnauthorized, apperrors.NewStandardError("Unauthorized", "token expired", "Token has expired, please login again"))
				c.Abort()
				return
			}

			logger.Warn("Invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(err),
			)
			c.JSON(http.StatusUnauthorized, apperrors.NewStandardError("Unauthorized", "invalid token", err.Error()))
			c.Abort()
			return
		}

		c.Set(UserIDContextKey, claims.UserID)
		c.Set(PermissionsContextKey, claims.Permissions)

		logger.Debug("Token validated",
			zap.Int64("user_id", claims.UserID),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)

		c.Next()
	}
}

// RequirePermission aborts with 403 unless the caller holds permission
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, granted := range c.GetStringSlice(PermissionsContextKey) {
			if granted == permission {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, apperrors.NewForbidden(permission))
		c.Abort()
	}
}
