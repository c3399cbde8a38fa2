package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "stock-sync-service"

// JWTClaims carries the caller's user id and granted permissions
type JWTClaims struct {
	UserID      int64    `json:"uid"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token generation and validation
type JWTManager struct {
	secretKey []byte
	logger    *zap.Logger
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, logger *zap.Logger) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

// GenerateToken signs a token for userID valid for ttl.
// Users are authenticated elsewhere; this exists for operators and tests.
func (j *JWTManager) GenerateToken(userID int64, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := JWTClaims{
		UserID:      userID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		j.logger.Error("Failed to generate token", zap.Error(err))
		return "", err
	}

	j.logger.Info("Token generated",
		zap.Int64("user_id", userID),
		zap.Strings("permissions", permissions),
		zap.Time("expires_at", expiresAt),
	)

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			j.logger.Warn("Token expired", zap.Error(err))
			return nil, ErrExpiredToken
		}
		j.logger.Warn("Invalid token", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		j.logger.Warn("Invalid token claims")
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		j.logger.Warn("Token without user id")
		return nil, ErrInvalidToken
	}

	return claims, nil
}
