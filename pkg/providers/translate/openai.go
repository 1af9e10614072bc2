package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// OpenAITranslate is the teacher's chat-completions adapter repointed at
// translation: one user message built from translatePrompt instead of a
// conversation history.
type OpenAITranslate struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAITranslate(apiKey string, model string) *OpenAITranslate {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAITranslate{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

func (l *OpenAITranslate) Translate(ctx context.Context, text string, from, to interpreter.Language) (string, error) {
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
		return text, fmt.Errorf("openai translate error (status %d): %v", resp.StatusCode, errResp)
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
		return text, fmt.Errorf("no choices returned from openai")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *OpenAITranslate) Name() string {
	return "openai-translate"
}
