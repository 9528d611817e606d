package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/anuva/internal/observability"
	"github.com/ent0n29/anuva/internal/policy"
)

type ServiceOptions struct {
	DefaultVoiceID string
	Timeout        time.Duration
	CacheSize      int
	Metrics        *observability.Metrics
}

// Service fronts a Synthesizer with a bounded FIFO cache. Concurrent requests
// for the same voice and text share one upstream call.
type Service struct {
	synth        Synthesizer
	defaultVoice string
	timeout      time.Duration
	metrics      *observability.Metrics

	group    singleflight.Group
	inflight sync.WaitGroup

	mu        sync.Mutex
	cache     map[string]Audio
	order     []string
	cacheSize int
}

// NewService accepts a nil synth; every call then fails with ErrNotConfigured.
func NewService(synth Synthesizer, opts ServiceOptions) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.CacheSize < 0 {
		opts.CacheSize = 0
	}
	return &Service{
		synth:        synth,
		defaultVoice: strings.TrimSpace(opts.DefaultVoiceID),
		timeout:      opts.Timeout,
		metrics:      opts.Metrics,
		cache:        make(map[string]Audio),
		cacheSize:    opts.CacheSize,
	}
}

func (s *Service) Configured() bool {
	return s != nil && s.synth != nil
}

// Synthesize returns cached audio when available. An empty voiceID selects
// the default voice.
func (s *Service) Synthesize(ctx context.Context, voiceID, text string) (Audio, error) {
	if !s.Configured() {
		return Audio{}, ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, ErrEmptyText
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		voiceID = s.defaultVoice
	}
	if voiceID == "" {
		return Audio{}, ErrNotConfigured
	}

	key := voiceID + "\x00" + text
	if audio, ok := s.cached(key); ok {
		return audio, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		audio, err := s.synthesizeWithRetry(callCtx, voiceID, text)
		if err != nil {
			return Audio{}, err
		}
		s.store(key, audio)
		return audio, nil
	})

	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Audio{}, res.Err
		}
		return res.Val.(Audio), nil
	}
}

// Prefetch warms the cache in the background. Failures are logged and
// counted, never returned.
func (s *Service) Prefetch(voiceID, text string) {
	if !s.Configured() || strings.TrimSpace(text) == "" {
		s.metrics.ObserveSpeechPrefetch("skipped")
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.Synthesize(ctx, voiceID, text); err != nil {
			s.metrics.ObserveSpeechPrefetch("error")
			log.WithFields(log.Fields{
				"voice_id": voiceID,
				"preview":  policy.LogPreview(text, 40),
			}).WithError(err).Warn("speech: prefetch failed")
			return
		}
		s.metrics.ObserveSpeechPrefetch("ok")
	}()
}

// Wait blocks until outstanding prefetches finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) synthesizeWithRetry(ctx context.Context, voiceID, text string) (Audio, error) {
	audio, err := s.synth.Synthesize(ctx, voiceID, text)
	if err == nil || !IsRetryable(err) || ctx.Err() != nil {
		return audio, err
	}
	log.WithError(err).Debug("speech: retrying after retryable stream error")
	return s.synth.Synthesize(ctx, voiceID, text)
}

func (s *Service) cached(key string) (Audio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cache[key]
	return a, ok
}

func (s *Service) store(key string, audio Audio) {
	if s.cacheSize == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[key]; ok {
		return
	}
	for len(s.order) >= s.cacheSize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
	s.cache[key] = audio
	s.order = append(s.order, key)
}
