package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandi-dev/dandi/internal/analysis"
	"github.com/dandi-dev/dandi/internal/db/models"
	"github.com/dandi-dev/dandi/internal/summarizer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePipeline struct {
	resp *analysis.Response
	key  *models.APIKey
	err  error

	gotKey string
	gotURL string
}

func (f *fakePipeline) Analyze(_ context.Context, rawKey, repositoryURL string) (*analysis.Response, error) {
	f.gotKey, f.gotURL = rawKey, repositoryURL
	return f.resp, f.err
}

func (f *fakePipeline) ValidateKey(_ context.Context, rawKey string) (*models.APIKey, error) {
	f.gotKey = rawKey
	return f.key, f.err
}

func newRouter(p Pipeline) *gin.Engine {
	h := NewHandlers(p)
	r := gin.New()
	r.POST("/api/github-summarizer", h.SummarizeHandler())
	r.POST("/api/validate-key", h.ValidateKeyHandler())
	return r
}

func post(r *gin.Engine, path, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func pipelineError(kind analysis.Kind, status int, msg string) error {
	return &analysis.Error{Kind: kind, Status: status, Message: msg}
}

func TestSummarizeHandler_Success(t *testing.T) {
	p := &fakePipeline{resp: &analysis.Response{Result: summarizer.Result{
		Summary:   "A web framework.",
		CoolFacts: []string{"fast", "small"},
	}}}

	w := post(newRouter(p), "/api/github-summarizer", " dandi-abc ", `{"githubUrl":"https://github.com/gin-gonic/gin"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"summary":"A web framework.","cool_facts":["fast","small"]}`, w.Body.String())
	assert.Equal(t, "dandi-abc", p.gotKey)
	assert.Equal(t, "https://github.com/gin-gonic/gin", p.gotURL)
}

func TestSummarizeHandler_MalformedBodyMeansNoURL(t *testing.T) {
	p := &fakePipeline{err: pipelineError(analysis.KindInvalidRepositoryURL, http.StatusBadRequest, analysis.MsgMissingRepositoryURL)}

	w := post(newRouter(p), "/api/github-summarizer", "dandi-abc", `{not json`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"GitHub URL is required"}`, w.Body.String())
	assert.Equal(t, "", p.gotURL)
	assert.Equal(t, "dandi-abc", p.gotKey)
}

func TestSummarizeHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"missing key", pipelineError(analysis.KindMissingKey, 400, analysis.MsgMissingKey), 400, "API key is required"},
		{"invalid key", pipelineError(analysis.KindInvalidKey, 401, analysis.MsgInvalidKey), 401, "Invalid API key"},
		{"quota", pipelineError(analysis.KindQuotaExceeded, 429, analysis.MsgQuotaExceeded), 429, "API key has exceeded monthly limit"},
		{"readme", pipelineError(analysis.KindReadmeNotFound, 404, analysis.MsgReadmeNotFound), 404, analysis.MsgReadmeNotFound},
		{"untyped", errors.New("boom"), 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newRouter(&fakePipeline{err: tt.err}), "/api/github-summarizer", "k", `{"githubUrl":"x"}`)

			require.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, map[string]any{"error": tt.wantError}, body)
		})
	}
}

func TestValidateKeyHandler_Valid(t *testing.T) {
	p := &fakePipeline{key: &models.APIKey{
		ID:           "key-1",
		Name:         "CI",
		Value:        "dandi-secret",
		Usage:        7,
		LimitUsage:   true,
		MonthlyLimit: 1000,
	}}

	w := post(newRouter(p), "/api/validate-key", "", `{"apiKey":"dandi-secret"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"valid": true,
		"message": "API key is valid",
		"data": {"id":"key-1","name":"CI","usage":7,"limitUsage":true,"monthlyLimit":1000}
	}`, w.Body.String())
	assert.Equal(t, "dandi-secret", p.gotKey)
	assert.NotContains(t, w.Body.String(), "dandi-secret")
}

func TestValidateKeyHandler_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"missing", `{}`, pipelineError(analysis.KindMissingKey, 400, analysis.MsgMissingKey), 400, analysis.MsgMissingKey},
		{"malformed", `[`, pipelineError(analysis.KindMissingKey, 400, analysis.MsgMissingKey), 400, analysis.MsgMissingKey},
		{"invalid", `{"apiKey":"nope"}`, pipelineError(analysis.KindInvalidKey, 401, analysis.MsgInvalidKey), 401, analysis.MsgInvalidKey},
		{"exhausted", `{"apiKey":"k"}`, pipelineError(analysis.KindQuotaExceeded, 429, analysis.MsgQuotaExceeded), 429, analysis.MsgQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newRouter(&fakePipeline{err: tt.err}), "/api/validate-key", "", tt.body)

			require.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["valid"])
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}
