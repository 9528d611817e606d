package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ent0n29/anuva/internal/prompt"
	"github.com/ent0n29/anuva/internal/reliability"
)

var errMalformed = errors.New("malformed response payload")

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	HTTPClient  *http.Client
}

// OpenAIProvider posts to {BaseURL}/chat/completions.
type OpenAIProvider struct {
	cfg      OpenAIConfig
	endpoint string
	client   *http.Client
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []prompt.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	User        string           `json:"user,omitempty"`
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIProvider{
		cfg:      cfg,
		endpoint: base + "/chat/completions",
		client:   client,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate sends the system prompt, history and input. Retryable statuses and
// transport errors are retried with capped backoff while ctx allows.
func (p *OpenAIProvider) Generate(ctx context.Context, req prompt.Request) (Reply, error) {
	msgs := make([]prompt.Message, 0, len(req.History)+2)
	msgs = append(msgs, prompt.Message{Role: "system", Content: req.SystemPrompt})
	msgs = append(msgs, req.Messages()...)

	payload, err := json.Marshal(chatRequest{
		Model:       p.cfg.Model,
		Messages:    msgs,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		User:        req.UserID,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, retryBaseDelay, retryMaxDelay)
			log.WithFields(log.Fields{
				"provider": p.Name(),
				"attempt":  attempt + 1,
				"delay":    delay,
			}).WithError(lastErr).Debug("provider: retrying")
			select {
			case <-ctx.Done():
				return Reply{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		reply, retryable, err := p.do(ctx, payload)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return Reply{}, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (p *OpenAIProvider) do(ctx context.Context, payload []byte) (Reply, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	res, err := p.client.Do(httpReq)
	if err != nil {
		return Reply{}, reliability.IsRetryableError(err), fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Reply{}, reliability.IsRetryableHTTPStatus(res.StatusCode), &StatusError{
			Code: res.StatusCode,
			Body: strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return Reply{}, reliability.IsRetryableError(err), fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return Reply{}, false, errMalformed
	}

	parsed := gjson.ParseBytes(body)
	return Reply{
		Text:  parsed.Get("choices.0.message.content").String(),
		Model: parsed.Get("model").String(),
	}, false, nil
}
