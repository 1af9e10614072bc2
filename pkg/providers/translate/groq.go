package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// GroqTranslate completes the teacher's never-implemented GroqLLM gap
// (referenced by groq_test.go and cmd/agent/main.go but without a groq.go
// behind it) via Groq's OpenAI-compatible chat completions endpoint, the
// same host GroqSTT already talks to for transcription.
type GroqTranslate struct {
	apiKey string
	url    string
	model  string
}

func NewGroqTranslate(apiKey string, model string) *GroqTranslate {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqTranslate{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *GroqTranslate) Translate(ctx context.Context, text string, from, to interpreter.Language) (string, error) {
	if from == to {
		return text, nil
	}

	payload := map[string]interface{}{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "user", "content": translatePrompt(text, string(from), string(to))},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return text, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return text, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return text, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return text, fmt.Errorf("groq translate error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return text, err
	}
	if len(result.Choices) == 0 {
		return text, fmt.Errorf("no choices returned from groq")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *GroqTranslate) Name() string {
	return "groq-translate"
}
