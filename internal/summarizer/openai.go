package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dandi-dev/dandi/internal/telemetry"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAITimeout = 10 * time.Second
	maxOpenAIErrorBody   = 2048
)

// OpenAIOptions configures an OpenAICompleter.
type OpenAIOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// BaseURL is the API root, e.g. https://api.openai.com/v1. Any server implementing
	// chat completions with json_schema response formats works.
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAICompleter implements StructuredCompleter on an OpenAI-compatible chat completions API.
type OpenAICompleter struct {
	http        *http.Client
	apiKey      string
	model       string
	temperature float32
	endpoint    string
}

// NewOpenAICompleter creates a chat completions client.
func NewOpenAICompleter(opts OpenAIOptions) *OpenAICompleter {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultOpenAITimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAICompleter{
		http:        client,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		endpoint:    base + "/chat/completions",
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteStructured implements StructuredCompleter.
func (o *OpenAICompleter) CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Human},
		},
		Temperature: o.temperature,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   req.Schema.Name,
				Strict: true,
				Schema: openAISchema(req.Schema),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	start := time.Now()
	resp, err := o.http.Do(httpReq)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	telemetry.UpstreamRequestDuration.WithLabelValues("llm", "generate", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("chat completions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxOpenAIErrorBody))
		return nil, fmt.Errorf("chat completions: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}
	msg := out.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", msg.Refusal)
	}
	if msg.Content == "" {
		return nil, ErrEmptyCompletion
	}
	return json.RawMessage(msg.Content), nil
}

func openAISchema(s Schema) map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{"description": f.Description}
		switch f.Type {
		case FieldStringList:
			prop["type"] = "array"
			prop["items"] = map[string]any{"type": "string"}
		default:
			prop["type"] = "string"
		}
		props[f.Name] = prop
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
