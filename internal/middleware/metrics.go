package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/telemetry"
)

// noRouteLabel is the path label for requests that matched no route (404/405).
const noRouteLabel = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds for
// every request. The path label is the matched route template (c.FullPath(), e.g.
// /api/keys/:id) so per-key URLs do not create new series.
//
// Register it after gin.Recovery() and RequestIDMiddleware so statuses written by
// recovery are the ones counted.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRouteLabel
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
