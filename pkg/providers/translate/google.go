package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// GoogleTranslate is the teacher's Gemini generateContent adapter repointed
// at translation. Same role remapping (system->user, assistant->model) even
// though this adapter only ever sends a single user turn.
type GoogleTranslate struct {
	apiKey string
	url    string
	model  string
}

func NewGoogleTranslate(apiKey string, model string) *GoogleTranslate {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleTranslate{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
	}
}

func (l *GoogleTranslate) Translate(ctx context.Context, text string, from, to interpreter.Language) (string, error) {
	if from == to {
		return text, nil
	}

	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role"`
		Parts []part `json:"parts"`
	}

	payload := map[string]interface{}{
		"contents": []content{
			{Role: "user", Parts: []part{{Text: translatePrompt(text, string(from), string(to))}}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return text, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return text, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return text, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return text, fmt.Errorf("google translate error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return text, err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return text, fmt.Errorf("no response from google translate")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (l *GoogleTranslate) Name() string {
	return "google-translate"
}
