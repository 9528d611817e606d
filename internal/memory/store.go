package memory

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// NewFactStore creates a postgres-backed fact store when configured, otherwise in-memory.
func NewFactStore(ctx context.Context, databaseURL string) (FactStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryFactStore(), nil
	}
	return NewPostgresFactStore(ctx, databaseURL)
}

// NewListBackend returns a Redis list backend when redisURL is set, or nil.
// An unreachable server is not an error: the short-term store degrades per call.
func NewListBackend(ctx context.Context, redisURL string) (*RedisList, error) {
	if strings.TrimSpace(redisURL) == "" {
		log.Info("short-term: REDIS_URL not set, using in-process store")
		return nil, nil
	}
	r, err := NewRedisList(redisURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		log.WithError(err).Warn("short-term: redis not reachable yet, calls will degrade to in-process store")
	} else {
		log.Info("short-term: redis connected")
	}
	return r, nil
}
