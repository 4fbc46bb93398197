// Package storage persists finished matches and the event audit ledger.
// Nothing here is read back to restore a running table.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// EventRecord is one stored table event.
type EventRecord struct {
	ID          string          `json:"id" db:"id"`
	SessionID   string          `json:"session_id" db:"session_id"`
	AtMS        int64           `json:"-" db:"at_ms"`
	Type        string          `json:"type" db:"event_type"`
	ActorID     string          `json:"actor_id,omitempty" db:"actor_id"`
	TargetID    string          `json:"target_id,omitempty" db:"target_id"`
	Recipient   string          `json:"-" db:"recipient"`
	Turn        int             `json:"turn" db:"turn"`
	PayloadText string          `json:"-" db:"payload"`
	Payload     json.RawMessage `json:"payload,omitempty" db:"-"`
	Timestamp   time.Time       `json:"timestamp" db:"-"`
}

// Private reports whether the event was addressed to one seat.
func (r EventRecord) Private() bool { return r.Recipient != "" }

// EventRepository is the append-only event ledger.
type EventRepository interface {
	// Append adds an event to the ledger.
	Append(ctx context.Context, rec EventRecord) error

	// GetBySession returns a table's events in order.
	GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error)
}

// MatchRecord is a stored match result.
type MatchRecord struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	Winner     string    `json:"winner,omitempty" db:"winner"`
	SeatsJSON  string    `json:"-" db:"seats"`
	Seats      []string  `json:"seats" db:"-"`
	Turns      int       `json:"turns" db:"turns"`
	Aborted    bool      `json:"aborted" db:"aborted"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	StartedMS  int64     `json:"-" db:"started_ms"`
	FinishedMS int64     `json:"-" db:"finished_ms"`
	StartedAt  time.Time `json:"started_at" db:"-"`
	FinishedAt time.Time `json:"finished_at" db:"-"`
}

// MatchRepository stores finished matches.
type MatchRepository interface {
	// Get returns one match, or nil when it is unknown.
	Get(ctx context.Context, sessionID string) (*MatchRecord, error)

	// List returns the most recently finished matches first.
	List(ctx context.Context, limit int) ([]MatchRecord, error)
}
