package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/anuva/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey          string
	WSBaseURL       string
	ModelID         string
	OutputFormat    string
	Stability       float64
	SimilarityBoost float64
}

// ElevenLabsSynthesizer speaks the stream-input websocket protocol: a priming
// frame with voice settings, the text, an empty end-of-input frame, then
// base64 audio frames until one is marked final.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	cfg.Stability = clampUnit(cfg.Stability, 0.5)
	cfg.SimilarityBoost = clampUnit(cfg.SimilarityBoost, 0.75)
	return &ElevenLabsSynthesizer{cfg: cfg, dialer: websocket.DefaultDialer}
}

type streamFrame struct {
	Audio       string `json:"audio"`
	IsFinal     bool   `json:"isFinal"`
	IsFinalAlt  bool   `json:"is_final"`
	Error       string `json:"error"`
	MessageType string `json:"message_type"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, voiceID, text string) (Audio, error) {
	if strings.TrimSpace(voiceID) == "" {
		return Audio{}, fmt.Errorf("%w: voice_id is required", ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrEmptyText
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return Audio{}, err
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, _, err := s.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return Audio{}, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	frames := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Stability,
				"similarity_boost": s.cfg.SimilarityBoost,
			},
		},
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return Audio{}, s.wrapConnErr(ctx, "write tts frame", err)
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				break
			}
			return Audio{}, s.wrapConnErr(ctx, "read tts frame", err)
		}
		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			return Audio{}, &StreamError{
				Code:      frame.MessageType,
				Detail:    frame.Error,
				Retryable: reliability.IsRetryableStreamMessageType(frame.MessageType),
			}
		}
		if frame.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				return Audio{}, fmt.Errorf("decode tts audio: %w", err)
			}
			audio = append(audio, chunk...)
		}
		if frame.IsFinal || frame.IsFinalAlt {
			break
		}
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return Audio{Data: audio, ContentType: contentType(s.cfg.OutputFormat)}, nil
}

func (s *ElevenLabsSynthesizer) wrapConnErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func contentType(outputFormat string) string {
	switch {
	case strings.HasPrefix(outputFormat, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(outputFormat, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(outputFormat, "ulaw"):
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}

func clampUnit(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	if v > 1 {
		return 1
	}
	return v
}
