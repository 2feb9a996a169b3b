package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/veracity/internal/model"
)

func TestOllamaGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("streaming must be disabled")
		}
		if req.Model != "llama3.1" {
			t.Errorf("model = %q", req.Model)
		}

		json.NewEncoder(w).Encode(ollamaResponse{
			Model:           req.Model,
			Response:        "\n{\"answer\": 42}\n",
			Done:            true,
			PromptEvalCount: 20,
			EvalCount:       7,
		})
	}))
	defer server.Close()

	p, err := NewOllamaProvider(model.LLMConfig{BaseURL: server.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "what is the answer"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != `{"answer": 42}` {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.TokensUsed != 27 {
		t.Errorf("tokens = %d, want 27", resp.TokensUsed)
	}
}

func TestOllamaGenerate_RequiresModel(t *testing.T) {
	p, _ := NewOllamaProvider(model.LLMConfig{BaseURL: "http://localhost:1"})
	if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Error("expected error without a model name")
	}
}

func TestOllamaGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	}))
	defer server.Close()

	p, _ := NewOllamaProvider(model.LLMConfig{BaseURL: server.URL, Model: "missing"})
	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOllamaIsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, _ := NewOllamaProvider(model.LLMConfig{BaseURL: server.URL})
	if !p.IsAvailable(context.Background()) {
		t.Error("expected available")
	}

	down, _ := NewOllamaProvider(model.LLMConfig{BaseURL: "http://127.0.0.1:1"})
	if down.IsAvailable(context.Background()) {
		t.Error("expected unavailable")
	}
}
