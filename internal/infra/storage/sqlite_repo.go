package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/session"
)

const eventColumns = `id, session_id, at_ms, event_type, actor_id, target_id, recipient, turn, payload`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sqlx.DB
}

func NewSQLiteEventRepository(db *sqlx.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, rec EventRecord) error {
	if rec.PayloadText == "" {
		rec.PayloadText = "null"
	}
	query := `INSERT INTO events (` + eventColumns + `)
		VALUES (:id, :session_id, :at_ms, :event_type, :actor_id, :target_id, :recipient, :turn, :payload)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, where string, args ...any) ([]EventRecord, error) {
	var recs []EventRecord
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + where + ` ORDER BY seq ASC`
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Payload = json.RawMessage(recs[i].PayloadText)
		recs[i].Timestamp = time.UnixMilli(recs[i].AtMS).UTC()
	}
	return recs, nil
}

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error) {
	return r.getMany(ctx, `session_id = ?`, sessionID)
}

// EventLedger writes table events through to an EventRepository.
type EventLedger struct {
	repo    EventRepository
	timeout time.Duration
}

// NewEventLedger adapts repo to events.EventPersister.
func NewEventLedger(repo EventRepository) *EventLedger {
	return &EventLedger{repo: repo, timeout: 5 * time.Second}
}

// Append implements events.EventPersister.
func (l *EventLedger) Append(e events.GameEvent) error {
	rec, err := ToRecord(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.repo.Append(ctx, rec)
}

// ToRecord converts a table event to its stored form.
func ToRecord(e events.GameEvent) (EventRecord, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return EventRecord{
		ID:          e.ID,
		SessionID:   e.SessionID,
		AtMS:        e.Timestamp.UnixMilli(),
		Type:        string(e.Type),
		ActorID:     e.ActorID,
		TargetID:    e.TargetID,
		Recipient:   e.Recipient,
		Turn:        e.Turn,
		PayloadText: string(payload),
		Payload:     payload,
		Timestamp:   e.Timestamp,
	}, nil
}

// SQLiteMatchRepository implements MatchRepository and session.ResultRecorder.
type SQLiteMatchRepository struct {
	db *sqlx.DB
}

func NewSQLiteMatchRepository(db *sqlx.DB) *SQLiteMatchRepository {
	return &SQLiteMatchRepository{db: db}
}

// RecordResult upserts a finished match.
func (r *SQLiteMatchRepository) RecordResult(ctx context.Context, res session.Result) error {
	seats, err := json.Marshal(res.Seats)
	if err != nil {
		return fmt.Errorf("failed to marshal seats: %w", err)
	}
	rec := MatchRecord{
		SessionID:  res.SessionID,
		Winner:     res.Winner,
		SeatsJSON:  string(seats),
		Turns:      res.Turns,
		Aborted:    res.Aborted,
		Reason:     res.Reason,
		StartedMS:  res.StartedAt.UnixMilli(),
		FinishedMS: res.FinishedAt.UnixMilli(),
	}
	query := `
		INSERT INTO matches (session_id, winner, seats, turns, aborted, reason, started_ms, finished_ms)
		VALUES (:session_id, :winner, :seats, :turns, :aborted, :reason, :started_ms, :finished_ms)
		ON CONFLICT(session_id) DO UPDATE SET
			winner=excluded.winner,
			seats=excluded.seats,
			turns=excluded.turns,
			aborted=excluded.aborted,
			reason=excluded.reason,
			finished_ms=excluded.finished_ms
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to record match: %w", err)
	}
	return nil
}

const matchColumns = `session_id, winner, seats, turns, aborted, reason, started_ms, finished_ms`

func (r *SQLiteMatchRepository) Get(ctx context.Context, sessionID string) (*MatchRecord, error) {
	var m MatchRecord
	err := r.db.GetContext(ctx, &m, `SELECT `+matchColumns+` FROM matches WHERE session_id = ?`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := m.decode(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLiteMatchRepository) List(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []MatchRecord
	err := r.db.SelectContext(ctx, &out, `SELECT `+matchColumns+` FROM matches ORDER BY finished_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if err := out[i].decode(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *MatchRecord) decode() error {
	if err := json.Unmarshal([]byte(m.SeatsJSON), &m.Seats); err != nil {
		return fmt.Errorf("match %s: bad seats: %w", m.SessionID, err)
	}
	m.StartedAt = time.UnixMilli(m.StartedMS).UTC()
	m.FinishedAt = time.UnixMilli(m.FinishedMS).UTC()
	return nil
}
