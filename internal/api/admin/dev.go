// dev.go implements development-only handlers for obtaining a session token without an
// identity provider.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/auth"
)

// SessionIssuer signs session tokens.
type SessionIssuer interface {
	Issue(userID, email string) (string, error)
}

// DevHandlers handles development-only endpoints
type DevHandlers struct {
	sessions SessionIssuer
}

// NewDevHandlers creates a new DevHandlers instance
func NewDevHandlers(sessions SessionIssuer) *DevHandlers {
	return &DevHandlers{sessions: sessions}
}

// DevModeMiddleware blocks access to dev endpoints in production
func DevModeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.IsDevMode() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Development endpoints are disabled in production",
			})
			return
		}
		c.Next()
	}
}

// DevSessionRequest names the principal to issue a token for.
type DevSessionRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// CreateSessionHandler issues a session token for any principal.
// POST /api/dev/session
func (h *DevHandlers) CreateSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DevSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
			return
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}

		token, err := h.sessions.Issue(req.UserID, req.Email)
		if err != nil {
			slog.Error("failed to issue dev session", "user_id", req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}

		slog.Warn("issued development session token", "user_id", req.UserID)
		c.JSON(http.StatusOK, gin.H{"token": token, "user_id": req.UserID})
	}
}
