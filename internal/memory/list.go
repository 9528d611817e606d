package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExpiryUnsupported is returned by list backends that cannot expire keys.
// The short-term store tolerates it and relies on trimming alone.
var ErrExpiryUnsupported = errors.New("list backend does not support expiry")

// ListBackend is a key-ordered list store.
type ListBackend interface {
	Append(ctx context.Context, key string, value []byte) error
	TrimToLast(ctx context.Context, key string, n int) error
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error
	RangeFromEnd(ctx context.Context, key string, count int) ([][]byte, error)
	Delete(ctx context.Context, key string) error
}

// BoundedAppender performs append, trim and expire as one atomic step for a key.
type BoundedAppender interface {
	AppendBounded(ctx context.Context, key string, value []byte, n int, ttl time.Duration) error
}

func appendBounded(ctx context.Context, b ListBackend, key string, value []byte, n int, ttl time.Duration) error {
	if ba, ok := b.(BoundedAppender); ok {
		return ba.AppendBounded(ctx, key, value, n, ttl)
	}
	if err := b.Append(ctx, key, value); err != nil {
		return err
	}
	if err := b.TrimToLast(ctx, key, n); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	if err := b.SetExpiry(ctx, key, ttl); err != nil && !errors.Is(err, ErrExpiryUnsupported) {
		return err
	}
	return nil
}

// MemoryList is an in-process ListBackend with lazy expiry.
type MemoryList struct {
	mu    sync.Mutex
	lists map[string]*memoryListEntry
	now   func() time.Time
}

type memoryListEntry struct {
	items     [][]byte
	expiresAt time.Time
}

func NewMemoryList() *MemoryList {
	return &MemoryList{
		lists: make(map[string]*memoryListEntry),
		now:   time.Now,
	}
}

func (l *MemoryList) Append(_ context.Context, key string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(key, value)
	return nil
}

func (l *MemoryList) TrimToLast(_ context.Context, key string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trimLocked(key, n)
	return nil
}

func (l *MemoryList) SetExpiry(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(key, ttl)
	return nil
}

func (l *MemoryList) AppendBounded(_ context.Context, key string, value []byte, n int, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(key, value)
	l.trimLocked(key, n)
	l.expireLocked(key, ttl)
	return nil
}

func (l *MemoryList) RangeFromEnd(_ context.Context, key string, count int) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.lookupLocked(key)
	if e == nil || count <= 0 {
		return nil, nil
	}
	if count > len(e.items) {
		count = len(e.items)
	}
	out := make([][]byte, 0, count)
	for _, item := range e.items[len(e.items)-count:] {
		out = append(out, append([]byte(nil), item...))
	}
	return out, nil
}

func (l *MemoryList) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lists, key)
	return nil
}

func (l *MemoryList) lookupLocked(key string) *memoryListEntry {
	e, ok := l.lists[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		delete(l.lists, key)
		return nil
	}
	return e
}

func (l *MemoryList) appendLocked(key string, value []byte) {
	e := l.lookupLocked(key)
	if e == nil {
		e = &memoryListEntry{}
		l.lists[key] = e
	}
	e.items = append(e.items, append([]byte(nil), value...))
}

func (l *MemoryList) trimLocked(key string, n int) {
	e := l.lookupLocked(key)
	if e == nil {
		return
	}
	if n <= 0 {
		delete(l.lists, key)
		return
	}
	if len(e.items) > n {
		kept := make([][]byte, n)
		copy(kept, e.items[len(e.items)-n:])
		e.items = kept
	}
}

func (l *MemoryList) expireLocked(key string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if e := l.lookupLocked(key); e != nil {
		e.expiresAt = l.now().Add(ttl)
	}
}
