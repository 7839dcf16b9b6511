package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	genai "google.golang.org/genai"
)

// fakeGemini answers generateContent calls with body and captures the last request.
func fakeGemini(t *testing.T, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestGeminiCompleter_CompleteStructured(t *testing.T) {
	var req map[string]any
	srv := fakeGemini(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"summary\":\"s\",\"cool_facts\":[\"a\"]}"}]}}]}`, &req)
	defer srv.Close()

	g, err := NewGeminiCompleter(context.Background(), GeminiOptions{APIKey: "test-key", Model: "gemini-2.5-flash", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiCompleter() error = %v", err)
	}

	raw, err := g.CompleteStructured(context.Background(), CompletionRequest{System: "sys", Human: "hi", Schema: OutputSchema})
	if err != nil {
		t.Fatalf("CompleteStructured() error = %v", err)
	}
	if string(raw) != `{"summary":"s","cool_facts":["a"]}` {
		t.Errorf("raw = %s", raw)
	}
	if _, ok := req["systemInstruction"]; !ok {
		t.Errorf("request has no systemInstruction: %v", req)
	}
	cfg, _ := req["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v, want application/json output", cfg)
	}
}

func TestGeminiCompleter_NoCandidates(t *testing.T) {
	srv := fakeGemini(t, `{"candidates":[]}`, nil)
	defer srv.Close()

	g, err := NewGeminiCompleter(context.Background(), GeminiOptions{APIKey: "test-key", Model: "m", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiCompleter() error = %v", err)
	}
	if _, err := g.CompleteStructured(context.Background(), CompletionRequest{Schema: OutputSchema}); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("error = %v, want ErrEmptyCompletion", err)
	}
}

func TestGeminiSchema(t *testing.T) {
	s := geminiSchema(OutputSchema)

	if s.Type != genai.TypeObject {
		t.Errorf("Type = %v, want object", s.Type)
	}
	if got := s.Properties["summary"]; got == nil || got.Type != genai.TypeString {
		t.Errorf("summary = %+v, want string", got)
	}
	facts := s.Properties["cool_facts"]
	if facts == nil || facts.Type != genai.TypeArray || facts.Items == nil || facts.Items.Type != genai.TypeString {
		t.Errorf("cool_facts = %+v, want array of string", facts)
	}
	if len(s.Required) != 2 {
		t.Errorf("Required = %v, want both fields", s.Required)
	}
}
