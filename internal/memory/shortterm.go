package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/anuva/internal/observability"
	"github.com/ent0n29/anuva/internal/reliability"
)

const (
	defaultStoreOpTimeout = 2 * time.Second
	remoteCooldownBase    = time.Second
	remoteCooldownCap     = 30 * time.Second
)

// ShortTermOptions configures a ShortTermStore.
type ShortTermOptions struct {
	OpTimeout time.Duration
	Metrics   *observability.Metrics
}

// ShortTermStore keeps the bounded, expiring turn list of every session.
// Failures of the remote backend are absorbed: the call is served by an
// in-process list instead and the remote is skipped for a short cooldown.
type ShortTermStore struct {
	remote    ListBackend
	local     *MemoryList
	opTimeout time.Duration
	metrics   *observability.Metrics
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	skipUntil time.Time
}

// NewShortTermStore builds a store over remote, which may be nil for in-process only.
func NewShortTermStore(remote ListBackend, opts ShortTermOptions) *ShortTermStore {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultStoreOpTimeout
	}
	return &ShortTermStore{
		remote:    remote,
		local:     NewMemoryList(),
		opTimeout: timeout,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// Append adds turn to the session, keeps the last MaxTurns and refreshes expiry.
func (s *ShortTermStore) Append(ctx context.Context, sessionID string, turn Turn) {
	key := SessionKey(sessionID)
	value, err := json.Marshal(turn)
	if err != nil {
		log.WithError(err).WithField("session_id", sessionID).Error("short-term: encode turn failed")
		return
	}

	if s.useRemote() {
		err := s.callRemote(ctx, func(ctx context.Context) error {
			return appendBounded(ctx, s.remote, key, value, MaxTurns, Retention)
		})
		if err == nil {
			return
		}
		s.degrade("append", sessionID, err)
	}
	_ = appendBounded(ctx, s.local, key, value, MaxTurns, Retention)
}

// Recent returns up to limit newest turns, oldest first. A limit outside
// (0, MaxTurns] reads the whole retained window.
func (s *ShortTermStore) Recent(ctx context.Context, sessionID string, limit int) []Turn {
	if limit <= 0 || limit > MaxTurns {
		limit = MaxTurns
	}
	key := SessionKey(sessionID)

	if s.useRemote() {
		var raw [][]byte
		err := s.callRemote(ctx, func(ctx context.Context) error {
			var err error
			raw, err = s.remote.RangeFromEnd(ctx, key, limit)
			return err
		})
		if err == nil {
			return decodeTurns(sessionID, raw)
		}
		s.degrade("recent", sessionID, err)
	}

	raw, _ := s.local.RangeFromEnd(ctx, key, limit)
	return decodeTurns(sessionID, raw)
}

// Clear removes every turn of the session. Idempotent.
func (s *ShortTermStore) Clear(ctx context.Context, sessionID string) {
	key := SessionKey(sessionID)
	_ = s.local.Delete(ctx, key)
	if s.remote == nil {
		return
	}
	err := s.callRemote(ctx, func(ctx context.Context) error {
		return s.remote.Delete(ctx, key)
	})
	if err != nil {
		s.degrade("clear", sessionID, err)
	}
}

func (s *ShortTermStore) callRemote(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	err := fn(opCtx)
	if err == nil {
		s.mu.Lock()
		s.failures = 0
		s.skipUntil = time.Time{}
		s.mu.Unlock()
	}
	return err
}

func (s *ShortTermStore) useRemote() bool {
	if s.remote == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().Before(s.skipUntil) {
		s.metrics.ObserveStorageDegraded("cooldown")
		return false
	}
	return true
}

func (s *ShortTermStore) degrade(op, sessionID string, err error) {
	if errors.Is(err, context.Canceled) {
		// The caller went away; that says nothing about the remote's health.
		s.metrics.ObserveStorageDegraded(op)
		return
	}
	s.mu.Lock()
	s.failures++
	cooldown := reliability.ExponentialBackoff(s.failures-1, remoteCooldownBase, remoteCooldownCap)
	s.skipUntil = s.now().Add(cooldown)
	s.mu.Unlock()

	s.metrics.ObserveStorageDegraded(op)
	log.WithError(err).WithFields(log.Fields{
		"op":         op,
		"session_id": sessionID,
		"cooldown":   cooldown.String(),
	}).Warn("short-term: remote store unavailable, using in-process store")
}

func decodeTurns(sessionID string, raw [][]byte) []Turn {
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal(item, &t); err != nil {
			log.WithError(err).WithField("session_id", sessionID).Warn("short-term: skipping malformed turn")
			continue
		}
		out = append(out, t)
	}
	return out
}
