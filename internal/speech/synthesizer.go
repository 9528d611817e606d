// Package speech turns reply text into audio through an external voice
// provider, with caching and best-effort prefetch.
package speech

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("speech synthesis not configured")
	ErrEmptyText     = errors.New("missing text")
)

// Audio is a complete synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer renders text with the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) (Audio, error)
}

// StreamError is an error frame reported by the provider mid-stream.
type StreamError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *StreamError) Error() string {
	if e.Code == "" {
		return "tts stream error: " + e.Detail
	}
	return fmt.Sprintf("tts stream error %s: %s", e.Code, e.Detail)
}

// IsRetryable reports whether err came from a provider frame worth retrying.
func IsRetryable(err error) bool {
	var streamErr *StreamError
	return errors.As(err, &streamErr) && streamErr.Retryable
}
