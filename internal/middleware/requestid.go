package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header carrying the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request identifier.
	RequestIDKey = "request_id"

	// maxRequestIDLength bounds caller-supplied identifiers before they reach logs.
	maxRequestIDLength = 128
)

type requestIDContextKey struct{}

// RequestIDMiddleware gives every request an identifier. A caller-supplied X-Request-ID
// is reused when it is reasonably short; otherwise a UUID v4 is generated. The value is
// stored in gin.Context under RequestIDKey, attached to the request context (see
// RequestIDFromContext) and echoed in the response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDContextKey{}, id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestIDFromContext returns the identifier set by RequestIDMiddleware, or "".
// Background work spawned from a request can use it to correlate its logs.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
