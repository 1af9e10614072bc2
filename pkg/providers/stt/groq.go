package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/audio"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

type GroqSTT struct {
	apiKey      string
	url         string
	model       string
	sampleRate  int
	retryPolicy interpreter.RetryPolicy
}

func NewGroqSTT(apiKey string, model string) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey:      apiKey,
		url:         "https://api.groq.com/openai/v1/audio/transcriptions",
		model:       model,
		sampleRate:  44100,
		retryPolicy: interpreter.DefaultRetryPolicy(nil),
	}
}

func (s *GroqSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

// Transcribe retries transient failures (timeouts, 5xx, rate limiting) with
// backoff per spec.md §7's "3 additional attempts for batch calls", via the
// shared interpreter Classify/RetryPolicy (as OpenAISTT does) instead of this
// file's own ad hoc error handling. The translate adapters make a single
// attempt and do not use it.
func (s *GroqSTT) Transcribe(ctx context.Context, audioPCM []byte, lang interpreter.Language) (string, error) {
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

	err = policy.Do(ctx, "groq-transcribe", func(ctx context.Context) error {
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
			return fmt.Errorf("groq stt error (status %d): %v", resp.StatusCode, errResp)
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

func (s *GroqSTT) Name() string {
	return "groq-stt"
}

// encodeMultipartAudio builds the multipart/form-data body the Groq and
// OpenAI transcription endpoints both expect, once per Transcribe call so
// retried attempts reuse the same bytes instead of re-encoding.
func encodeMultipartAudio(model string, lang interpreter.Language, wavData []byte) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", model); err != nil {
		return nil, "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return nil, "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body.Bytes(), writer.FormDataContentType(), nil
}
