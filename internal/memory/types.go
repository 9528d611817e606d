package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// MaxTurns bounds every session's short-term list.
	MaxTurns = 30
	// Retention is the expiry applied to a session list on every write.
	Retention = 7 * 24 * time.Hour
	// DefaultFactLimit applies when SearchFacts is called without a limit.
	DefaultFactLimit = 5
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one immutable utterance in a session.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// NewTurn truncates the timestamp to milliseconds so the wire form round-trips exactly.
func NewTurn(role Role, text string, at time.Time) Turn {
	return Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.UnixMilli(at.UnixMilli()).UTC(),
	}
}

type wireTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTurn{Role: t.Role, Text: t.Text, TS: t.Timestamp.UnixMilli()})
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var w wireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("unknown turn role %q", w.Role)
	}
	t.Role = w.Role
	t.Text = w.Text
	t.Timestamp = time.UnixMilli(w.TS).UTC()
	return nil
}

// SessionKey is the list key holding a session's turns.
func SessionKey(sessionID string) string {
	return "session:" + sessionID + ":msgs"
}

// Fact is a durable key/value datum about a user.
type Fact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FactStore persists and retrieves long-term user facts.
type FactStore interface {
	SaveFact(ctx context.Context, userID, key, value string) (Fact, error)
	GetFacts(ctx context.Context, userID string) ([]Fact, error)
	SearchFacts(ctx context.Context, userID, query string, limit int) ([]Fact, error)
	ClearFacts(ctx context.Context, userID string) error
	Close() error
}
