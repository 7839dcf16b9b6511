// Package api wires together all HTTP routes of the analysis service.
//
// Route grouping:
//   - /api/github-summarizer and /api/validate-key are gated by the x-api-key header. A
//     session token is optional there; when present its principal is used by owner-scoped
//     deployments and as the rate limit identity.
//   - /api/keys manages the caller's keys and always requires a session token.
//   - /api/dev only answers in dev mode.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/api/admin"
	"github.com/dandi-dev/dandi/internal/api/analyze"
	"github.com/dandi-dev/dandi/internal/config"
	"github.com/dandi-dev/dandi/internal/middleware"
)

// SessionService verifies session tokens on requests and issues them in dev mode.
type SessionService interface {
	middleware.SessionVerifier
	admin.SessionIssuer
}

// Dependencies are the collaborators the routes are served by. Limiter may be nil,
// which disables rate limiting.
type Dependencies struct {
	DB       *sql.DB
	Pipeline analyze.Pipeline
	Keys     admin.KeyStore
	Sessions SessionService
	Limiter  middleware.Limiter
	Version  string
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB))
	router.GET("/version", versionHandler(deps.Version))

	var rateLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		rateLimit = middleware.RateLimitMiddleware(deps.Limiter)
	}

	apiGroup := router.Group("/api")
	{
		analyzeHandlers := analyze.NewHandlers(deps.Pipeline)
		public := apiGroup.Group("")
		public.Use(middleware.OptionalSessionMiddleware(deps.Sessions))
		public.Use(rateLimit)
		{
			public.POST("/github-summarizer", analyzeHandlers.SummarizeHandler())
			public.POST("/validate-key", analyzeHandlers.ValidateKeyHandler())
		}

		keyHandlers := admin.NewAPIKeyHandlers(cfg, deps.Keys)
		keysGroup := apiGroup.Group("/keys")
		keysGroup.Use(middleware.SessionMiddleware(deps.Sessions))
		keysGroup.Use(rateLimit)
		{
			keysGroup.GET("", keyHandlers.ListAPIKeysHandler())
			keysGroup.POST("", keyHandlers.CreateAPIKeyHandler())
			keysGroup.GET("/stats", keyHandlers.UsageStatsHandler())
			keysGroup.GET("/:id", keyHandlers.GetAPIKeyHandler())
			keysGroup.PUT("/:id", keyHandlers.UpdateAPIKeyHandler())
			keysGroup.DELETE("/:id", keyHandlers.DeleteAPIKeyHandler())
		}

		devGroup := apiGroup.Group("/dev")
		devGroup.Use(admin.DevModeMiddleware())
		{
			devHandlers := admin.NewDevHandlers(deps.Sessions)
			devGroup.POST("/session", devHandlers.CreateSessionHandler())
		}
	}

	return router
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns whether the service can take analysis traffic. The record store
// is the only hard dependency; GitHub and the model degrade instead of failing.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request. The record format (json or text)
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-API-Key")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
