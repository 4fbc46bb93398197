package engine

import (
	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
)

// Outbound event payloads.

// GameStartedPayload announces the table setup.
type GameStartedPayload struct {
	Seats         []string `json:"seats"`
	StartingCoins int      `json:"starting_coins"`
	FirstSeat     string   `json:"first_seat"`
}

// ActionProposedPayload describes an accepted proposal.
type ActionProposedPayload struct {
	Action      catalog.ActionID `json:"action"`
	Name        string           `json:"name"`
	ClaimedRole catalog.Role     `json:"claimed_role,omitempty"`
	Cost        int              `json:"cost"`
	CoinsLeft   int              `json:"coins_left"`
}

// WindowPayload describes a window opening or closing.
type WindowPayload struct {
	Seq        uint64         `json:"seq"`
	Phase      Phase          `json:"phase"`
	ClaimantID string         `json:"claimant_id,omitempty"`
	Role       catalog.Role   `json:"role,omitempty"`
	Roles      []catalog.Role `json:"roles,omitempty"` // roles that may block
	Eligible   []string       `json:"eligible,omitempty"`
	TimeoutMS  int64          `json:"timeout_ms,omitempty"`
	Reason     string         `json:"reason,omitempty"` // why a window closed
}

// Window close reasons.
const (
	CloseTimeout    = "timeout"
	CloseAllPassed  = "all_passed"
	CloseChallenged = "challenged"
	CloseBlocked    = "blocked"
)

// ChallengeResolvedPayload reports a challenge outcome.
type ChallengeResolvedPayload struct {
	ClaimantID   string       `json:"claimant_id"`
	ChallengerID string       `json:"challenger_id"`
	Role         catalog.Role `json:"role"`
	ClaimantWins bool         `json:"claimant_wins"`
	AgainstBlock bool         `json:"against_block"`
}

// BlockAnnouncedPayload reports a block claim.
type BlockAnnouncedPayload struct {
	BlockerID string           `json:"blocker_id"`
	Role      catalog.Role     `json:"role"`
	Action    catalog.ActionID `json:"action"`
}

// ClaimPayload accompanies ACTION_BLOCKED, ACTION_CANCELLED and ACTION_VOIDED.
type ClaimPayload struct {
	Claim  PendingClaim `json:"claim"`
	Reason string       `json:"reason,omitempty"`
}

// ActionResolvedPayload summarizes an applied effect.
type ActionResolvedPayload struct {
	Action      catalog.ActionID `json:"action"`
	ActorCoins  int              `json:"actor_coins"`  // change to the actor's balance
	TargetCoins int              `json:"target_coins"` // change to the target's balance
	Summary     string           `json:"summary"`
}

// InfluencePayload reports a requested or completed influence loss.
type InfluencePayload struct {
	SeatID    string       `json:"seat_id"`
	Role      catalog.Role `json:"role,omitempty"`
	Remaining int          `json:"remaining"`
	Reason    string       `json:"reason,omitempty"`
	Seq       uint64       `json:"seq,omitempty"`
	TimeoutMS int64        `json:"timeout_ms,omitempty"`
}

// Influence loss reasons.
const (
	LossFailedChallenge = "failed_challenge"
	LossCaughtBluffing  = "caught_bluffing"
	LossCoup            = "coup"
	LossAssassinated    = "assassinated"
)

// CardPayload reports a card shown face-up or replaced.
type CardPayload struct {
	SeatID string       `json:"seat_id"`
	Role   catalog.Role `json:"role,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// ExchangeOfferedPayload is sent privately to the exchanging seat.
type ExchangeOfferedPayload struct {
	Hand      []deck.Card `json:"hand"`
	Drawn     []int       `json:"drawn"`
	Return    int         `json:"return"`
	Seq       uint64      `json:"seq"`
	TimeoutMS int64       `json:"timeout_ms,omitempty"`
}

// TurnPayload announces whose turn it is.
type TurnPayload struct {
	SeatID string `json:"seat_id"`
	Turn   int    `json:"turn"`
}

// GameOverPayload announces the end of the game.
type GameOverPayload struct {
	WinnerID string `json:"winner_id,omitempty"`
	Turns    int    `json:"turns"`
	Aborted  bool   `json:"aborted,omitempty"`
}

// AbortPayload explains why a table was aborted.
type AbortPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Inbound command payloads.

// ProposeCommand is the payload of PROPOSE_ACTION. Action accepts an id or display name.
type ProposeCommand struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// BlockCommand is the payload of BLOCK.
type BlockCommand struct {
	Role string `json:"role"`
}

// InfluenceChoice is the payload of CHOOSE_INFLUENCE.
type InfluenceChoice struct {
	CardIndex int `json:"card_index"`
}

// ExchangeChoice is the payload of CHOOSE_EXCHANGE.
type ExchangeChoice struct {
	CardIndices []int `json:"card_indices"`
}
