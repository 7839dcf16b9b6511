// Package summarizer turns README text into a short structured summary using a language
// model. Any failure along the way yields a fixed fallback result instead of an error, so
// callers always have something to return.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dandi-dev/dandi/internal/telemetry"
	"github.com/dandi-dev/dandi/internal/validation"
)

const (
	// DefaultMaxReadmeChars is how much of the README is sent to the model.
	DefaultMaxReadmeChars = 3000

	systemPrompt = "You are an expert technical writer. Analyze the GitHub repository README content and provide a structured summary."
	humanPrompt  = "Please summarize this GitHub repository based on the README content:\n\n"

	fallbackSummary  = "Unable to analyze the README content at this time."
	fallbackCoolFact = "Error occurred during LLM analysis"
)

// ErrEmptyCompletion is returned by completers when the model produced no content.
var ErrEmptyCompletion = errors.New("model returned no content")

// Result is the model's view of a repository.
type Result struct {
	Summary   string   `json:"summary" validate:"required"`
	CoolFacts []string `json:"cool_facts" validate:"required"`
}

// Fallback returns the result used whenever the model cannot produce a usable answer.
func Fallback() Result {
	return Result{
		Summary:   fallbackSummary,
		CoolFacts: []string{fallbackCoolFact},
	}
}

// FieldType is the JSON type of a schema field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldStringList
)

// Field describes one property of the requested output object. All fields are required.
type Field struct {
	Name        string
	Type        FieldType
	Description string
}

// Schema describes the JSON object a completion must return.
type Schema struct {
	Name   string
	Fields []Field
}

// CompletionRequest is a single system + user exchange with a structured output contract.
type CompletionRequest struct {
	System string
	Human  string
	Schema Schema
}

// StructuredCompleter performs one structured-output model call and returns the raw JSON
// object. Implementations must not retry.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error)
}

// OutputSchema is the contract every summary call is made with.
var OutputSchema = Schema{
	Name: "repository_summary",
	Fields: []Field{
		{Name: "summary", Type: FieldString, Description: "A concise summary of the GitHub repository"},
		{Name: "cool_facts", Type: FieldStringList, Description: "3-5 interesting facts about the repository"},
	},
}

// Summarizer wraps a StructuredCompleter with the fixed prompts and the fallback policy.
type Summarizer struct {
	completer StructuredCompleter
	maxChars  int
}

// New creates a Summarizer. A nil completer makes every call fall back; maxChars <= 0
// selects DefaultMaxReadmeChars.
func New(completer StructuredCompleter, maxChars int) *Summarizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxReadmeChars
	}
	return &Summarizer{completer: completer, maxChars: maxChars}
}

// Summarize asks the model for a summary of readme. It never fails: errors and malformed
// output are logged and replaced by Fallback().
func (s *Summarizer) Summarize(ctx context.Context, readme string) Result {
	if s.completer == nil {
		return s.fallback("not_configured", errors.New("no completer configured"))
	}

	raw, err := s.completer.CompleteStructured(ctx, CompletionRequest{
		System: systemPrompt,
		Human:  humanPrompt + Truncate(readme, s.maxChars),
		Schema: OutputSchema,
	})
	if err != nil {
		return s.fallback("call_failed", err)
	}

	res, err := decodeResult(raw)
	if err != nil {
		return s.fallback("invalid_output", err)
	}
	return res
}

func (s *Summarizer) fallback(reason string, err error) Result {
	slog.Warn("summarizer: using fallback result", "reason", reason, "error", err)
	telemetry.SummarizerFallbacksTotal.WithLabelValues(reason).Inc()
	return Fallback()
}

func decodeResult(raw json.RawMessage) (Result, error) {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode model output: %w", err)
	}
	if err := validation.Struct(res); err != nil {
		return Result{}, fmt.Errorf("model output: %w", err)
	}
	return res, nil
}

// Truncate keeps at most maxChars characters of s, never splitting a multi-byte rune.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
