package summarizer

import (
	"context"
	"errors"
	"testing"

	"github.com/dandi-dev/dandi/internal/config"
)

func TestNewCompleter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr error
		wantAny bool
	}{
		{name: "unknown provider", cfg: config.LLMConfig{Provider: "claude"}, wantAny: true},
		{name: "gemini without key", cfg: config.LLMConfig{Provider: "gemini"}, wantErr: ErrMissingAPIKey},
		{name: "openai without key or url", cfg: config.LLMConfig{Provider: "openai"}, wantErr: ErrMissingAPIKey},
		{name: "openai self hosted", cfg: config.LLMConfig{Provider: "openai", BaseURL: "http://localhost:8000/v1"}},
		{name: "openai with key", cfg: config.LLMConfig{Provider: "openai", APIKey: "sk"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCompleter(context.Background(), &tt.cfg)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAny:
				if err == nil {
					t.Error("error = nil, want error")
				}
			default:
				if err != nil || c == nil {
					t.Errorf("NewCompleter() = %v, %v", c, err)
				}
			}
		})
	}
}

func TestProviders(t *testing.T) {
	got := Providers()
	if len(got) != 2 || got[0] != "gemini" || got[1] != "openai" {
		t.Errorf("Providers() = %v", got)
	}
}
