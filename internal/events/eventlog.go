// Package events provides the outbound event model and the per-table ledger.
// Every state change of a table is described by an immutable GameEvent.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a game event.
type EventType string

const (
	EventTypeGameStarted                EventType = "GAME_STARTED"
	EventTypeActionProposed             EventType = "ACTION_PROPOSED"
	EventTypeActionRejected             EventType = "ACTION_REJECTED"
	EventTypeChallengeWindowOpened      EventType = "CHALLENGE_WINDOW_OPENED"
	EventTypeChallengeWindowClosed      EventType = "CHALLENGE_WINDOW_CLOSED"
	EventTypeChallengeResolved          EventType = "CHALLENGE_RESOLVED"
	EventTypeBlockWindowOpened          EventType = "BLOCK_WINDOW_OPENED"
	EventTypeBlockWindowClosed          EventType = "BLOCK_WINDOW_CLOSED"
	EventTypeBlockAnnounced             EventType = "BLOCK_ANNOUNCED"
	EventTypeBlockChallengeWindowOpened EventType = "BLOCK_CHALLENGE_WINDOW_OPENED"
	EventTypeBlockChallengeWindowClosed EventType = "BLOCK_CHALLENGE_WINDOW_CLOSED"
	EventTypeActionBlocked              EventType = "ACTION_BLOCKED"
	EventTypeActionCancelled            EventType = "ACTION_CANCELLED"
	EventTypeActionVoided               EventType = "ACTION_VOIDED"
	EventTypeActionResolved             EventType = "ACTION_RESOLVED"
	EventTypeInfluenceChoiceRequested   EventType = "INFLUENCE_CHOICE_REQUESTED"
	EventTypeInfluenceLost              EventType = "INFLUENCE_LOST"
	EventTypeCardRevealed               EventType = "CARD_REVEALED"
	EventTypeCardReplaced               EventType = "CARD_REPLACED"
	EventTypeExchangeOffered            EventType = "EXCHANGE_OFFERED"
	EventTypePlayerEliminated           EventType = "PLAYER_ELIMINATED"
	EventTypeTurnAdvanced               EventType = "TURN_ADVANCED"
	EventTypeGameOver                   EventType = "GAME_OVER"
	EventTypeSessionAborted             EventType = "SESSION_ABORTED"
	EventTypeStateSnapshot              EventType = "STATE_SNAPSHOT"
)

// GameEvent represents an immutable record of something that happened at a table.
type GameEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`  // Who performed the action
	TargetID  string    `json:"target_id,omitempty"` // Who was affected (optional)
	Recipient string    `json:"-"`                   // Private to this seat when set
	Turn      int       `json:"turn"`
	Payload   any       `json:"payload,omitempty"` // Event-specific data
}

// Private reports whether only Recipient may see the event.
func (e GameEvent) Private() bool {
	return e.Recipient != ""
}

// New creates an event with a fresh ID.
func New(t EventType, at time.Time, actorID, targetID string, payload any) GameEvent {
	return GameEvent{
		ID:        GenerateEventID(),
		Timestamp: at,
		Type:      t,
		ActorID:   actorID,
		TargetID:  targetID,
		Payload:   payload,
	}
}

// CommandType identifies an inbound player command.
type CommandType string

const (
	CommandProposeAction   CommandType = "PROPOSE_ACTION"
	CommandChallenge       CommandType = "CHALLENGE"
	CommandBlock           CommandType = "BLOCK"
	CommandChooseInfluence CommandType = "CHOOSE_INFLUENCE"
	CommandChooseExchange  CommandType = "CHOOSE_EXCHANGE"
	CommandPass            CommandType = "PASS"
)

// PlayerCommand is the inbound envelope delivered by the transport.
// Seat is stamped by the transport from the authenticated connection.
type PlayerCommand struct {
	Type    CommandType     `json:"type"`
	Seat    string          `json:"seat,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// ErrorHandler receives persister failures.
type ErrorHandler func(event GameEvent, err error)

// EventLog is the in-memory append-only log of one table's events.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister
	onError   ErrorHandler
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
}

// OnPersistError registers a callback for failed write-throughs.
func (el *EventLog) OnPersistError(h ErrorHandler) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.onError = h
}

// Append adds a new event to the log. Events are immutable once appended.
// The persister is called synchronously so the ledger keeps event order.
func (el *EventLog) Append(event GameEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.persister != nil {
		if err := el.persister.Append(event); err != nil && el.onError != nil {
			el.onError(event, err)
		}
	}
}

// Len returns the number of events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
