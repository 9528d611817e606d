package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// InMemoryFactStore is a simple in-process fact repository for local/dev use.
type InMemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string][]Fact
}

func NewInMemoryFactStore() *InMemoryFactStore {
	return &InMemoryFactStore{facts: make(map[string][]Fact)}
}

func (s *InMemoryFactStore) SaveFact(_ context.Context, userID, key, value string) (Fact, error) {
	fact := Fact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.facts[userID] = append(s.facts[userID], fact)
	s.mu.Unlock()

	log.WithFields(log.Fields{"user_id": userID, "key": key}).Debug("long-term: saved fact")
	return fact, nil
}

func (s *InMemoryFactStore) GetFacts(_ context.Context, userID string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.facts[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	out := make([]Fact, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryFactStore) SearchFacts(_ context.Context, userID, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultFactLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Fact
	for _, f := range s.facts[userID] {
		if !strings.Contains(f.Key, query) && !strings.Contains(f.Value, query) {
			continue
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryFactStore) ClearFacts(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.facts, userID)
	s.mu.Unlock()
	log.WithField("user_id", userID).Debug("long-term: cleared facts")
	return nil
}

func (s *InMemoryFactStore) Close() error { return nil }
