package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// AnthropicTranslate repoints the teacher's Anthropic chat-completion
// adapter at translation: same request/response shape (x-api-key +
// anthropic-version headers, system+messages body), but the one message
// sent is a translation instruction rather than a conversational turn.
type AnthropicTranslate struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicTranslate(apiKey string, model string) *AnthropicTranslate {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicTranslate{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (l *AnthropicTranslate) Translate(ctx context.Context, text string, from, to interpreter.Language) (string, error) {
	if from == to {
		return text, nil
	}

	payload := map[string]interface{}{
		"model":      l.model,
		"max_tokens": 1024,
		"system":     "You are a professional simultaneous interpreter. Translate exactly; never add commentary.",
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
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return text, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return text, fmt.Errorf("anthropic translate error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return text, err
	}
	if len(result.Content) == 0 {
		return text, fmt.Errorf("no content returned from anthropic")
	}
	return result.Content[0].Text, nil
}

func (l *AnthropicTranslate) Name() string {
	return "anthropic-translate"
}
