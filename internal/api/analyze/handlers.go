// Package analyze implements the public, API-key gated endpoints: the repository summary and
// the key check used by clients before they submit work.
package analyze

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dandi-dev/dandi/internal/analysis"
	"github.com/dandi-dev/dandi/internal/auth"
	"github.com/dandi-dev/dandi/internal/db/models"
)

// Pipeline is the part of analysis.Orchestrator the handlers drive.
type Pipeline interface {
	Analyze(ctx context.Context, rawKey, repositoryURL string) (*analysis.Response, error)
	ValidateKey(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// Handlers serves the analysis endpoints.
type Handlers struct {
	pipeline Pipeline
}

// NewHandlers creates a new Handlers instance
func NewHandlers(pipeline Pipeline) *Handlers {
	return &Handlers{pipeline: pipeline}
}

// SummarizeRequest is the body of POST /api/github-summarizer.
type SummarizeRequest struct {
	GitHubURL string `json:"githubUrl"`
}

// SummarizeHandler analyzes one repository on behalf of the key in the x-api-key header.
// A body that does not decode is treated as carrying no URL; the key is still checked first.
// POST /api/github-summarizer
func (h *Handlers) SummarizeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := auth.ExtractAPIKey(c.GetHeader(auth.APIKeyHeader))

		var req SummarizeRequest
		_ = c.ShouldBindJSON(&req)

		resp, err := h.pipeline.Analyze(c.Request.Context(), rawKey, req.GitHubURL)
		if err != nil {
			ae := analysis.AsError(err)
			c.JSON(ae.Status, gin.H{"error": ae.Message})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ValidateKeyRequest is the body of POST /api/validate-key.
type ValidateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// KeySummary is the subset of a key returned to a client that proved it holds the value.
type KeySummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Usage        int64  `json:"usage"`
	LimitUsage   bool   `json:"limitUsage"`
	MonthlyLimit int64  `json:"monthlyLimit"`
}

// ValidateKeyHandler reports whether a key would currently be admitted.
// POST /api/validate-key
func (h *Handlers) ValidateKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateKeyRequest
		_ = c.ShouldBindJSON(&req)

		key, err := h.pipeline.ValidateKey(c.Request.Context(), auth.ExtractAPIKey(req.APIKey))
		if err != nil {
			ae := analysis.AsError(err)
			c.JSON(ae.Status, gin.H{"valid": false, "error": ae.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":   true,
			"message": "API key is valid",
			"data": KeySummary{
				ID:           key.ID,
				Name:         key.Name,
				Usage:        key.Usage,
				LimitUsage:   key.LimitUsage,
				MonthlyLimit: key.MonthlyLimit,
			},
		})
	}
}
