// Package admin implements the session-authenticated key management API. Every handler
// acts only on keys owned by the principal that SessionMiddleware attached; keys owned by
// anyone else are reported as not found.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/auth"
	"github.com/dandi-dev/dandi/internal/config"
	"github.com/dandi-dev/dandi/internal/db/models"
	"github.com/dandi-dev/dandi/internal/db/repositories"
	"github.com/dandi-dev/dandi/internal/middleware"
)

const (
	msgUnauthenticated = "Unauthorized - User not authenticated"
	msgNameRequired    = "Name is required"
	msgNegativeLimit   = "Monthly limit must not be negative"
	msgKeyNotFound     = "API key not found"
	msgKeyDeleted      = "API key deleted successfully"
	msgInvalidBody     = "Invalid request body"
	msgInternal        = "Internal server error"
)

// KeyStore is the persistence the key management API needs.
type KeyStore interface {
	ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	Create(ctx context.Context, key *models.APIKey) error
	Update(ctx context.Context, key *models.APIKey) error
	Delete(ctx context.Context, id string) error
	UsageStatsByUser(ctx context.Context, userID string) (*models.UsageStats, error)
}

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	keys         KeyStore
	prefix       string
	defaultLimit int64
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, keys KeyStore) *APIKeyHandlers {
	return &APIKeyHandlers{
		keys:         keys,
		prefix:       cfg.Auth.APIKeys.Prefix,
		defaultLimit: int64(cfg.Auth.APIKeys.DefaultMonthlyLimit),
	}
}

// KeyRequest is the body of create and update calls. Absent optional fields keep their
// default (create) or current value (update).
type KeyRequest struct {
	Name         string `json:"name"`
	LimitUsage   *bool  `json:"limitUsage"`
	MonthlyLimit *int64 `json:"monthlyLimit"`
}

// validate returns the caller-facing message for an unacceptable request, or "".
func (r *KeyRequest) validate() string {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return msgNameRequired
	}
	if r.MonthlyLimit != nil && *r.MonthlyLimit < 0 {
		return msgNegativeLimit
	}
	return ""
}

// bindKeyRequest decodes and validates the body, writing the 400 itself on failure.
func bindKeyRequest(c *gin.Context) (*KeyRequest, bool) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return nil, false
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return nil, false
	}
	return &req, true
}

// currentUser reads the principal, writing the 401 itself when there is none.
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgUnauthenticated})
	}
	return userID, ok
}

// ownedKey loads the :id key and checks ownership, writing 404/500 itself on failure.
func (h *APIKeyHandlers) ownedKey(c *gin.Context, userID string) (*models.APIKey, bool) {
	key, err := h.keys.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("failed to load api key", "key_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return nil, false
	}
	if key == nil || !key.OwnedBy(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgKeyNotFound})
		return nil, false
	}
	return key, true
}

// ListAPIKeysHandler lists the caller's keys, newest first.
// GET /api/keys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		keys, err := h.keys.ListByUser(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to list api keys", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}
		c.JSON(http.StatusOK, keys)
	}
}

// CreateAPIKeyHandler issues a new key to the caller.
// POST /api/keys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		req, ok := bindKeyRequest(c)
		if !ok {
			return
		}

		value, err := auth.GenerateAPIKey(h.prefix)
		if err != nil {
			slog.Error("failed to generate api key", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}

		key := &models.APIKey{
			Name:         req.Name,
			Value:        value,
			UserID:       &userID,
			MonthlyLimit: h.defaultLimit,
		}
		if req.LimitUsage != nil {
			key.LimitUsage = *req.LimitUsage
		}
		if req.MonthlyLimit != nil {
			key.MonthlyLimit = *req.MonthlyLimit
		}

		if err := h.keys.Create(c.Request.Context(), key); err != nil {
			slog.Error("failed to create api key", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}

		slog.Info("api key created", "key_id", key.ID, "user_id", userID)
		c.JSON(http.StatusCreated, key)
	}
}

// GetAPIKeyHandler returns one of the caller's keys.
// GET /api/keys/:id
func (h *APIKeyHandlers) GetAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		key, ok := h.ownedKey(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, key)
	}
}

// UpdateAPIKeyHandler changes the name and limit settings of one of the caller's keys.
// The value and usage of a key can never be changed.
// PUT /api/keys/:id
func (h *APIKeyHandlers) UpdateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		req, ok := bindKeyRequest(c)
		if !ok {
			return
		}
		key, ok := h.ownedKey(c, userID)
		if !ok {
			return
		}

		key.Name = req.Name
		if req.LimitUsage != nil {
			key.LimitUsage = *req.LimitUsage
		}
		if req.MonthlyLimit != nil {
			key.MonthlyLimit = *req.MonthlyLimit
		}

		if err := h.keys.Update(c.Request.Context(), key); err != nil {
			if errors.Is(err, repositories.ErrAPIKeyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": msgKeyNotFound})
				return
			}
			slog.Error("failed to update api key", "key_id", key.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}
		c.JSON(http.StatusOK, key)
	}
}

// DeleteAPIKeyHandler deletes one of the caller's keys.
// DELETE /api/keys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		key, ok := h.ownedKey(c, userID)
		if !ok {
			return
		}

		if err := h.keys.Delete(c.Request.Context(), key.ID); err != nil {
			if errors.Is(err, repositories.ErrAPIKeyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": msgKeyNotFound})
				return
			}
			slog.Error("failed to delete api key", "key_id", key.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}

		slog.Info("api key deleted", "key_id", key.ID, "user_id", userID)
		c.JSON(http.StatusOK, gin.H{"message": msgKeyDeleted})
	}
}
