package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroqTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		resp := struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "ciao"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &GroqTranslate{apiKey: "test-key", url: server.URL, model: "llama-3.3-70b-versatile"}

	out, err := l.Translate(context.Background(), "hello", "English", "Italian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ciao" {
		t.Errorf("expected 'ciao', got '%s'", out)
	}
	if l.Name() != "groq-translate" {
		t.Errorf("unexpected name: %s", l.Name())
	}
}

func TestGroqTranslate_SkipsCallWhenLanguagesMatch(t *testing.T) {
	l := &GroqTranslate{apiKey: "test-key", url: "http://unused.invalid", model: "llama-3.3-70b-versatile"}

	out, err := l.Translate(context.Background(), "same", "Spanish", "Spanish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "same" {
		t.Errorf("expected passthrough, got '%s'", out)
	}
}
