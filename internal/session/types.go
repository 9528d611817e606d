package session

import (
	"errors"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is the in-process activity record for a conversation. Its identifier
// is supplied by the caller and is not checked for ownership.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// View is the JSON shape returned by the session history endpoint.
type View struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id,omitempty"`
	Status          Status    `json:"status"`
	Turns           int       `json:"turns"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	LastActivityAt  time.Time `json:"last_activity_at,omitempty"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
