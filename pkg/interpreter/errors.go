package interpreter

import "errors"

var (
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	ErrTranscriptionFailed = errors.New("speech-to-text transcription failed")

	ErrTranslationFailed = errors.New("translation request failed")

	ErrSynthesisFailed = errors.New("speech synthesis failed")

	ErrNilProvider = errors.New("required provider is nil")

	ErrContextCancelled = errors.New("operation cancelled by context")

	ErrStreamStopped = errors.New("speaker stream is stopped")

	ErrQuotaExhausted = errors.New("provider quota exhausted, restart disabled")

	ErrUnknownSession = errors.New("unknown session")

	ErrUnknownParticipant = errors.New("unknown participant")

	ErrNotSpeaking = errors.New("participant does not have speaking permission")

	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)
