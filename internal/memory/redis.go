package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisList is a ListBackend over Redis lists.
type RedisList struct {
	client redis.UniversalClient
}

func NewRedisList(redisURL string) (*RedisList, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisListFromClient(redis.NewClient(opts)), nil
}

func NewRedisListFromClient(client redis.UniversalClient) *RedisList {
	return &RedisList{client: client}
}

func (r *RedisList) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisList) Append(ctx context.Context, key string, value []byte) error {
	return r.client.RPush(ctx, key, value).Err()
}

func (r *RedisList) TrimToLast(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return r.client.Del(ctx, key).Err()
	}
	return r.client.LTrim(ctx, key, int64(-n), -1).Err()
}

func (r *RedisList) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisList) AppendBounded(ctx context.Context, key string, value []byte, n int, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, value)
		if n > 0 {
			p.LTrim(ctx, key, int64(-n), -1)
		}
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (r *RedisList) RangeFromEnd(ctx context.Context, key string, count int) ([][]byte, error) {
	if count <= 0 {
		return nil, nil
	}
	items, err := r.client.LRange(ctx, key, int64(-count), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}

func (r *RedisList) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisList) Close() error {
	return r.client.Close()
}
