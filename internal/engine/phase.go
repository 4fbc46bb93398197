package engine

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
)

// Phase is the state of a table.
type Phase string

const (
	PhaseAwaitingAction        Phase = "AWAITING_ACTION"
	PhaseChallengeWindow       Phase = "CHALLENGE_WINDOW"
	PhaseBlockWindow           Phase = "BLOCK_WINDOW"
	PhaseBlockChallengeWindow  Phase = "BLOCK_CHALLENGE_WINDOW"
	PhaseResolving             Phase = "RESOLVING"
	PhaseAwaitingInfluenceLoss Phase = "AWAITING_INFLUENCE_LOSS"
	PhaseAwaitingExchange      Phase = "AWAITING_EXCHANGE"
	PhaseGameOver              Phase = "GAME_OVER"
)

// IsWindow reports whether the phase is a response window.
func (p Phase) IsWindow() bool {
	return p == PhaseChallengeWindow || p == PhaseBlockWindow || p == PhaseBlockChallengeWindow
}

// Timed reports whether the phase closes on its own when its timeout expires.
func (p Phase) Timed() bool {
	return p.IsWindow() || p == PhaseAwaitingInfluenceLoss || p == PhaseAwaitingExchange
}

const (
	MinSeats             = 2
	MaxSeats             = 6
	DefaultStartingCoins = 2
	CardsPerSeat         = 2
)

// Timeouts holds how long each waiting phase stays open.
type Timeouts struct {
	Challenge       time.Duration `json:"challenge"`
	Block           time.Duration `json:"block"`
	BlockChallenge  time.Duration `json:"block_challenge"`
	InfluenceChoice time.Duration `json:"influence_choice"`
	Exchange        time.Duration `json:"exchange"`
}

// DefaultTimeouts are the integrator defaults used by the server.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Challenge:       15 * time.Second,
		Block:           15 * time.Second,
		BlockChallenge:  15 * time.Second,
		InfluenceChoice: 30 * time.Second,
		Exchange:        30 * time.Second,
	}
}

func (t Timeouts) forPhase(p Phase) time.Duration {
	switch p {
	case PhaseChallengeWindow:
		return t.Challenge
	case PhaseBlockWindow:
		return t.Block
	case PhaseBlockChallengeWindow:
		return t.BlockChallenge
	case PhaseAwaitingInfluenceLoss:
		return t.InfluenceChoice
	case PhaseAwaitingExchange:
		return t.Exchange
	}
	return 0
}

// Config configures a new table.
type Config struct {
	Seats         []string
	StartingCoins int // 0 means DefaultStartingCoins
	Timeouts      Timeouts
	Rand          *rand.Rand       // nil means crypto-seeded
	Now           func() time.Time // nil means time.Now
	Logger        *logger.Logger   // nil means no logging
}

// PendingClaim is the action currently moving through the windows.
type PendingClaim struct {
	ActorID     string           `json:"actor_id"`
	Action      catalog.ActionID `json:"action"`
	TargetID    string           `json:"target_id,omitempty"`
	ClaimedRole catalog.Role     `json:"claimed_role,omitempty"`
	BlockerID   string           `json:"blocker_id,omitempty"`
	BlockedRole catalog.Role     `json:"blocked_role,omitempty"`
}

// window is one open response window. At most one challenge or block is
// accepted per window.
type window struct {
	seq      uint64
	phase    Phase
	eligible []string
	passed   map[string]bool
	claimed  atomic.Bool
}

func newWindow(seq uint64, phase Phase, eligible []string) *window {
	return &window{
		seq:      seq,
		phase:    phase,
		eligible: eligible,
		passed:   make(map[string]bool, len(eligible)),
	}
}

// claim takes the single response slot. Only the first caller succeeds.
func (w *window) claim() bool {
	return w.claimed.CompareAndSwap(false, true)
}

func (w *window) canRespond(seat string) bool {
	if w.claimed.Load() || w.passed[seat] {
		return false
	}
	for _, id := range w.eligible {
		if id == seat {
			return true
		}
	}
	return false
}

func (w *window) pass(seat string) (allPassed bool) {
	w.passed[seat] = true
	for _, id := range w.eligible {
		if !w.passed[id] {
			return false
		}
	}
	return true
}

func (w *window) waiting() []string {
	if w.claimed.Load() {
		return nil
	}
	var out []string
	for _, id := range w.eligible {
		if !w.passed[id] {
			out = append(out, id)
		}
	}
	return out
}

// then is what happens once a pending influence loss is settled.
type then int

const (
	thenAfterChallenge then = iota // block window or resolution
	thenResolve
	thenEndTurn
)

type influenceLoss struct {
	seat   string
	reason string
	next   then
}

type exchangeOffer struct {
	drawn []int // hand indices of the drawn cards
}
