package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/analysis"
	"github.com/dandi-dev/dandi/internal/auth"
	"github.com/dandi-dev/dandi/internal/config"
	"github.com/dandi-dev/dandi/internal/db/models"
	"github.com/dandi-dev/dandi/internal/middleware"
	"github.com/dandi-dev/dandi/internal/summarizer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestHealthCheckHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingOK     bool
		wantStatus int
		wantValue  string
	}{
		{"healthy", true, http.StatusOK, "healthy"},
		{"unhealthy", false, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", healthCheckHandler(newHealthDB(t, tt.pingOK)))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeBody(t, w)["status"]; got != tt.wantValue {
				t.Errorf("status = %v, want %s", got, tt.wantValue)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingOK     bool
		wantStatus int
		wantReady  bool
		wantCheck  string
	}{
		{"ready", true, http.StatusOK, true, "healthy"},
		{"not ready", false, http.StatusServiceUnavailable, false, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", readinessHandler(newHealthDB(t, tt.pingOK)))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if body["ready"] != tt.wantReady {
				t.Errorf("ready = %v, want %v", body["ready"], tt.wantReady)
			}
			checks, _ := body["checks"].(map[string]interface{})
			if checks["database"] != tt.wantCheck {
				t.Errorf("checks.database = %v, want %s", checks["database"], tt.wantCheck)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler("1.2.3"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", body["version"])
	}
	if body["api_version"] != "v1" {
		t.Errorf("api_version = %v, want v1", body["api_version"])
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_PassesThrough(t *testing.T) {
	for _, level := range []string{"info", "debug"} {
		t.Run(level, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Logging.Level = level

			r := gin.New()
			r.Use(middleware.RequestIDMiddleware())
			r.Use(LoggerMiddleware(cfg))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if w.Code != http.StatusTeapot {
				t.Errorf("status = %d, want 418", w.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		methods     []string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods string
	}{
		{"allowed origin", []string{"https://example.com"}, nil, http.MethodGet, "https://example.com", http.StatusOK, "https://example.com", "GET, POST, PUT, DELETE, OPTIONS"},
		{"wildcard", []string{"*"}, nil, http.MethodGet, "https://anything.com", http.StatusOK, "https://anything.com", "GET, POST, PUT, DELETE, OPTIONS"},
		{"wildcard without origin", []string{"*"}, nil, http.MethodGet, "", http.StatusOK, "*", "GET, POST, PUT, DELETE, OPTIONS"},
		{"disallowed origin", []string{"https://allowed.com"}, nil, http.MethodGet, "https://evil.com", http.StatusOK, "", ""},
		{"preflight", []string{"*"}, nil, http.MethodOptions, "https://example.com", http.StatusNoContent, "https://example.com", "GET, POST, PUT, DELETE, OPTIONS"},
		{"configured methods", []string{"*"}, []string{"GET", "POST"}, http.MethodGet, "https://example.com", http.StatusOK, "https://example.com", "GET, POST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Security.CORS.AllowedOrigins = tt.allowed
			cfg.Security.CORS.AllowedMethods = tt.methods

			r := gin.New()
			r.Use(CORSMiddleware(cfg))
			r.Handle(tt.method, "/", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, tt.wantMethods)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

type stubPipeline struct {
	principal string
}

func (s *stubPipeline) Analyze(ctx context.Context, rawKey, _ string) (*analysis.Response, error) {
	s.principal, _ = auth.PrincipalFromContext(ctx)
	if rawKey == "" {
		return nil, &analysis.Error{Kind: analysis.KindMissingKey, Status: http.StatusBadRequest, Message: analysis.MsgMissingKey}
	}
	return &analysis.Response{Result: summarizer.Result{Summary: "ok", CoolFacts: []string{}}}, nil
}

func (s *stubPipeline) ValidateKey(_ context.Context, _ string) (*models.APIKey, error) {
	return &models.APIKey{ID: "key-1"}, nil
}

const testSessionSecret = "router-test-secret-0123456789abcdef"

func newTestRouter(t *testing.T, limiter middleware.Limiter) (*gin.Engine, *stubPipeline, *auth.SessionManager) {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Auth.APIKeys.Prefix = "dandi-"
	cfg.Auth.APIKeys.DefaultMonthlyLimit = 1000

	pipeline := &stubPipeline{}
	sessions := auth.NewSessionManager(testSessionSecret, time.Hour)
	r := NewRouter(cfg, Dependencies{
		DB:       db,
		Pipeline: pipeline,
		Sessions: sessions,
		Limiter:  limiter,
		Version:  "test",
	})
	return r, pipeline, sessions
}

func postJSON(r *gin.Engine, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouter_SummarizeRoute(t *testing.T) {
	r, _, _ := newTestRouter(t, nil)

	w := postJSON(r, "/api/github-summarizer", `{"githubUrl":"https://github.com/a/b"}`, map[string]string{"x-api-key": "dandi-x"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	w = postJSON(r, "/api/github-summarizer", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestNewRouter_OptionalSessionReachesPipeline(t *testing.T) {
	r, pipeline, sessions := newTestRouter(t, nil)
	token, err := sessions.Issue("user-42", "u@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := postJSON(r, "/api/github-summarizer", `{"githubUrl":"https://github.com/a/b"}`, map[string]string{
		"x-api-key":     "dandi-x",
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if pipeline.principal != "user-42" {
		t.Errorf("principal = %q, want user-42", pipeline.principal)
	}
}

func TestNewRouter_KeysRequireSession(t *testing.T) {
	r, _, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/keys", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != "Unauthorized - User not authenticated" {
		t.Errorf("error = %v", got)
	}
}

func TestNewRouter_DevRoutesDisabledOutsideDevMode(t *testing.T) {
	t.Setenv("DANDI_DEV_MODE", "")
	t.Setenv("GIN_MODE", "release")
	r, _, _ := newTestRouter(t, nil)

	w := postJSON(r, "/api/dev/session", `{"userId":"u"}`, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestNewRouter_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	t.Cleanup(limiter.Stop)
	r, _, _ := newTestRouter(t, limiter)

	headers := map[string]string{"x-api-key": "dandi-limited"}
	if w := postJSON(r, "/api/validate-key", `{}`, headers); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w := postJSON(r, "/api/validate-key", `{}`, headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
