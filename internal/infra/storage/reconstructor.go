package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Reconstructor rebuilds a match recap from the event ledger, for audits
// and the finished-match API. Private events are skipped.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a recap builder.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// SeatRecap is one seat's line in a recap.
type SeatRecap struct {
	SeatID         string   `json:"seat_id"`
	Proposed       int      `json:"proposed"`
	Challenges     int      `json:"challenges"`
	Blocks         int      `json:"blocks"`
	Lost           []string `json:"lost,omitempty"` // roles revealed, in order
	EliminatedTurn int      `json:"eliminated_turn,omitempty"`
}

// MatchRecap is the per-seat scoreline of one table.
type MatchRecap struct {
	SessionID string      `json:"session_id"`
	Winner    string      `json:"winner,omitempty"`
	Aborted   bool        `json:"aborted"`
	Turns     int         `json:"turns"`
	Seats     []SeatRecap `json:"seats"`
}

// payload fields the recap reads.
type recapPayload struct {
	Seats        []string `json:"seats"`
	Role         string   `json:"role"`
	ChallengerID string   `json:"challenger_id"`
	BlockerID    string   `json:"blocker_id"`
	SeatID       string   `json:"seat_id"`
	Reason       string   `json:"reason"`
	WinnerID     string   `json:"winner_id"`
	Turns        int      `json:"turns"`
	Aborted      bool     `json:"aborted"`
}

// Rebuild replays a table's ledger into a recap.
func (r *Reconstructor) Rebuild(ctx context.Context, sessionID string) (*MatchRecap, error) {
	recs, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for %s: %w", sessionID, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	recap := &MatchRecap{SessionID: sessionID}
	index := map[string]int{}
	seat := func(id string) *SeatRecap {
		i, ok := index[id]
		if !ok {
			i = len(recap.Seats)
			recap.Seats = append(recap.Seats, SeatRecap{SeatID: id})
			index[id] = i
		}
		return &recap.Seats[i]
	}

	for _, rec := range recs {
		if rec.Private() {
			continue
		}
		var p recapPayload
		if len(rec.Payload) > 0 {
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				return nil, fmt.Errorf("event %s: %w", rec.ID, err)
			}
		}
		switch rec.Type {
		case "GAME_STARTED":
			for _, id := range p.Seats {
				seat(id)
			}
		case "ACTION_PROPOSED":
			seat(rec.ActorID).Proposed++
		case "CHALLENGE_RESOLVED":
			seat(p.ChallengerID).Challenges++
		case "BLOCK_ANNOUNCED":
			seat(p.BlockerID).Blocks++
		case "CARD_REVEALED":
			if p.Reason != "" && p.Reason != "vindicated" {
				s := seat(p.SeatID)
				s.Lost = append(s.Lost, p.Role)
			}
		case "PLAYER_ELIMINATED":
			seat(p.SeatID).EliminatedTurn = rec.Turn
		case "GAME_OVER":
			recap.Winner = p.WinnerID
			recap.Turns = p.Turns
			recap.Aborted = p.Aborted
		}
	}
	return recap, nil
}
