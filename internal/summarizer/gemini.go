package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	genai "google.golang.org/genai"

	"github.com/dandi-dev/dandi/internal/telemetry"
)

// GeminiOptions configures a GeminiCompleter.
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// BaseURL overrides the Gemini API endpoint. Empty selects the SDK default.
	BaseURL string
	// HTTPClient overrides the transport used by the SDK.
	HTTPClient *http.Client
}

// GeminiCompleter implements StructuredCompleter on the Gemini API, passing the output
// contract as a response schema so the model is constrained to it.
type GeminiCompleter struct {
	cli         *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiCompleter creates a client for the Gemini API.
func NewGeminiCompleter(ctx context.Context, opts GeminiOptions) (*GeminiCompleter, error) {
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{
		cli:         cli,
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
	}, nil
}

// CompleteStructured implements StructuredCompleter.
func (g *GeminiCompleter) CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    geminiSchema(req.Schema),
	}

	start := time.Now()
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Human}}}},
		config,
	)
	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.UpstreamRequestDuration.WithLabelValues("llm", "generate", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyCompletion
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return nil, ErrEmptyCompletion
	}
	return json.RawMessage(text), nil
}

func geminiSchema(s Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
	}
	for _, f := range s.Fields {
		prop := &genai.Schema{Description: f.Description}
		switch f.Type {
		case FieldStringList:
			prop.Type = genai.TypeArray
			prop.Items = &genai.Schema{Type: genai.TypeString}
		default:
			prop.Type = genai.TypeString
		}
		out.Properties[f.Name] = prop
		out.Required = append(out.Required, f.Name)
		out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
	}
	return out
}
