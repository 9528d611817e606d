package session

import (
	"context"
	"sync"
	"time"
)

// Manager tracks which sessions are live so idle per-session state elsewhere
// in the process can be released. Sessions come into existence on first Touch.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) InactivityTimeout() time.Duration {
	return m.inactivityTimeout
}

// SetExpireHook registers fn to run, outside the lock, for every session the
// janitor ends.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Touch records activity for sessionID, creating the record when needed.
// A later userID replaces an empty one but never overwrites a set one.
func (m *Manager) Touch(sessionID, userID string) *Session {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{
			ID:        sessionID,
			UserID:    userID,
			Status:    StatusActive,
			StartedAt: now,
		}
		m.sessions[sessionID] = s
	}
	if s.UserID == "" {
		s.UserID = userID
	}
	s.Turns++
	s.LastActivityAt = now
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// End drops the session and returns its final state.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	s.Status = StatusEnded
	s.LastActivityAt = m.now()
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// View renders sessionID for API responses. Unknown sessions render as ended.
func (m *Manager) View(sessionID string) View {
	v := View{
		SessionID:       sessionID,
		Status:          StatusEnded,
		InactivityTTLMS: m.inactivityTimeout.Milliseconds(),
	}
	s, err := m.Get(sessionID)
	if err != nil {
		return v
	}
	v.UserID = s.UserID
	v.Status = s.Status
	v.Turns = s.Turns
	v.StartedAt = s.StartedAt
	v.LastActivityAt = s.LastActivityAt
	return v
}

func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		delete(m.sessions, id)
		s.Status = StatusEnded
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
