package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/audio"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

type OpenAISTT struct {
	apiKey      string
	url         string
	model       string
	sampleRate  int
	retryPolicy interpreter.RetryPolicy
}

func NewOpenAISTT(apiKey string, model string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		apiKey:      apiKey,
		url:         "https://api.openai.com/v1/audio/transcriptions",
		model:       model,
		sampleRate:  44100,
		retryPolicy: interpreter.DefaultRetryPolicy(nil),
	}
}

func (s *OpenAISTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *OpenAISTT) Name() string {
	return "openai_stt"
}

// Transcribe retries transient failures with backoff per spec.md §7's batch
// call policy, classifying errors the same way as every other provider via
// interpreter.Classify instead of this file's own status-string parsing.
func (s *OpenAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang interpreter.Language) (string, error) {
	body, contentType, err := encodeMultipartAudio(s.model, lang, audio.NewWavBuffer(audioPCM, s.sampleRate))
	if err != nil {
		return "", err
	}

	policy := s.retryPolicy
	if policy.MaxAttempts == 0 {
		policy = interpreter.DefaultRetryPolicy(nil)
	}

	var statusCode int
	var result struct {
		Text string `json:"text"`
	}

	err = policy.Do(ctx, "openai-transcribe", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			var errResp interface{}
			json.NewDecoder(resp.Body).Decode(&errResp)
			return fmt.Errorf("openai error: %v (status %d)", errResp, resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	}, func(err error) interpreter.Verdict {
		return interpreter.Classify(err, statusCode, "")
	})
	if err != nil {
		return "", err
	}

	return result.Text, nil
}
