// Package middleware provides Gin HTTP middleware: request ids, metrics, security
// headers, rate limiting and session authentication.
//
// Ordering is fixed in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → Session → RateLimit → Handler
//
// Sessions are resolved before rate limiting so a signed-in user is throttled as one
// identity across all their keys.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/auth"
)

const (
	// UserIDKey is the gin.Context key holding the authenticated principal.
	UserIDKey = "user_id"

	unauthenticatedMessage = "Unauthorized - User not authenticated"
)

// SessionVerifier validates a session token.
type SessionVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// SessionMiddleware requires a valid "Authorization: Bearer <session token>" header and
// exposes the principal through gin.Context (UserIDKey) and the request context
// (auth.PrincipalFromContext).
func SessionMiddleware(sessions SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !attachPrincipal(c, sessions) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": unauthenticatedMessage})
			return
		}
		c.Next()
	}
}

// OptionalSessionMiddleware attaches the principal when a valid session token is present
// and otherwise continues anonymously.
func OptionalSessionMiddleware(sessions SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		attachPrincipal(c, sessions)
		c.Next()
	}
}

func attachPrincipal(c *gin.Context, sessions SessionVerifier) bool {
	if sessions == nil {
		return false
	}
	token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return false
	}
	claims, err := sessions.Verify(token)
	if err != nil {
		slog.Debug("session token rejected", "error", err)
		return false
	}

	c.Set(UserIDKey, claims.UserID)
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), claims.UserID))
	return true
}

// CurrentUserID returns the principal set by the session middleware.
func CurrentUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}
