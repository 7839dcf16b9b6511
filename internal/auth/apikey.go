// Package auth provides the credential primitives of the service: API key generation and
// extraction, session token issuance/verification, and the request principal carried in a context.
// See internal/middleware/auth.go for the request-time use of these primitives.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// APIKeyHeader carries the API key on analysis requests.
	APIKeyHeader = "x-api-key"

	// APIKeyRandomLength is the number of random characters after the prefix.
	APIKeyRandomLength = 24

	apiKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateAPIKey creates a new key value: the prefix followed by APIKeyRandomLength
// characters drawn uniformly from [a-z0-9] with crypto/rand.
func GenerateAPIKey(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(len(prefix) + APIKeyRandomLength)
	b.WriteString(prefix)

	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := 0; i < APIKeyRandomLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random key material: %w", err)
		}
		b.WriteByte(apiKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ExtractAPIKey normalises a raw x-api-key header value. An absent header yields "".
func ExtractAPIKey(header string) string {
	return strings.TrimSpace(header)
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
