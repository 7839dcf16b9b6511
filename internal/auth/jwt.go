// Package auth - jwt.go issues and verifies the HS256 session tokens that identify the
// principal on the key management API.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// JWTSecretEnv names the environment variable holding the signing secret.
	JWTSecretEnv = "DANDI_JWT_SECRET"

	sessionIssuer = "dandi"
)

// ErrMissingJWTSecret is returned outside dev mode when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("SECURITY ERROR: " + JWTSecretEnv + " environment variable is required in production. " +
	"Generate a secure secret with: openssl rand -hex 32")

// Claims represents the session token claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// IsDevMode reports whether DANDI_DEV_MODE or GIN_MODE=debug enables development behaviour.
func IsDevMode() bool {
	devMode := os.Getenv("DANDI_DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// LoadJWTSecret reads the session signing secret from DANDI_JWT_SECRET.
// In dev mode a random secret is generated instead; sessions then do not survive a restart.
func LoadJWTSecret() (string, error) {
	secret := os.Getenv(JWTSecretEnv)
	if secret == "" {
		if !IsDevMode() {
			return "", ErrMissingJWTSecret
		}
		slog.Warn(JWTSecretEnv + " not set, using an auto-generated secret for development; sessions will not persist across restarts")
		return generateRandomSecret()
	}

	if len(secret) < 32 {
		slog.Warn(JWTSecretEnv + " is shorter than the recommended 32 characters")
	}
	return secret, nil
}

// SessionManager signs and verifies session tokens with a shared secret.
type SessionManager struct {
	secret []byte
	expiry time.Duration
}

// NewSessionManager creates a SessionManager. A zero expiry defaults to one hour.
func NewSessionManager(secret string, expiry time.Duration) *SessionManager {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &SessionManager{secret: []byte(secret), expiry: expiry}
}

// Issue creates a signed token for userID.
func (m *SessionManager) Issue(userID, email string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    sessionIssuer,
			Subject:   userID,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a token, returning its claims.
func (m *SessionManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(sessionIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}
