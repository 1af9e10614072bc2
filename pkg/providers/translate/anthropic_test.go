package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

func TestAnthropicTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			Model    string              `json:"model"`
			Messages []map[string]string `json:"messages"`
			System   string              `json:"system,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}{
			Content: []struct {
				Text string `json:"text"`
			}{
				{Text: "hola"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &AnthropicTranslate{apiKey: "test-key", url: server.URL, model: "claude-3"}

	out, err := l.Translate(context.Background(), "hello", "English", "Spanish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hola" {
		t.Errorf("expected 'hola', got '%s'", out)
	}
	if l.Name() != "anthropic-translate" {
		t.Errorf("unexpected name: %s", l.Name())
	}
}

func TestAnthropicTranslate_SameLanguageSkipsCall(t *testing.T) {
	l := &AnthropicTranslate{apiKey: "test-key", url: "http://unused.invalid", model: "claude-3"}

	out, err := l.Translate(context.Background(), "hello", interpreter.LanguageEnglish, interpreter.LanguageEnglish)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected passthrough, got '%s'", out)
	}
}
