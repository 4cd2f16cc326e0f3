package session

import (
	"time"

	"github.com/ent0n29/studybuddy/internal/understanding"
)

// CreateRequest defines payload for creating a new study session.
type CreateRequest struct {
	UserID        string            `json:"user_id"`
	Topic         string            `json:"topic"`
	Understanding understanding.Map `json:"understanding,omitempty"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Topic           string    `json:"topic"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
