// Package bot drives tables headlessly: seat bots that pick among the legal
// moves, and a loop that plays a table to the end.
package bot

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/player"
	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
)

// Table is the read side a bot decides from.
type Table interface {
	Phase() engine.Phase
	Awaiting() []string
	LegalActions(seat string) []catalog.ActionID
	Targets(actor string) []string
	BlockRoles(seat string) []catalog.Role
	CanChallenge(seat string) bool
	Player(id string) (*player.Player, bool)
}

// Bot answers for one seat.
type Bot interface {
	Name() string
	// Act returns the command to send, or false to stay silent and let the
	// open window run out.
	Act(t Table, seat string) (events.PlayerCommand, bool)
}

// RandomBot plays uniformly among its legal moves.
type RandomBot struct {
	BotName string

	ChallengeRate float64 // chance to challenge when allowed
	BlockRate     float64 // chance to block when allowed
	SilenceRate   float64 // chance to ignore a window

	cat   *catalog.Catalog
	rng   *rand.Rand
	draws int
}

// NewRandomBot creates a bot with moderate aggression.
func NewRandomBot(cat *catalog.Catalog, rng *rand.Rand) *RandomBot {
	draws := 2
	if a, err := cat.Action(catalog.ActionExchange); err == nil {
		draws = a.Effect(0).ActorDraws
	}
	return &RandomBot{
		ChallengeRate: 0.2,
		BlockRate:     0.4,
		SilenceRate:   0.1,
		cat:           cat,
		rng:           rng,
		draws:         draws,
	}
}

func (b *RandomBot) Name() string {
	if b.BotName == "" {
		b.BotName = "RandomBot_" + strconv.Itoa(b.rng.IntN(100))
	}
	return b.BotName
}

func (b *RandomBot) Act(t Table, seat string) (events.PlayerCommand, bool) {
	if !slices.Contains(t.Awaiting(), seat) {
		return events.PlayerCommand{}, false
	}
	switch t.Phase() {
	case engine.PhaseAwaitingAction:
		return b.propose(t, seat)
	case engine.PhaseChallengeWindow, engine.PhaseBlockChallengeWindow:
		if b.rng.Float64() < b.SilenceRate {
			return events.PlayerCommand{}, false
		}
		if t.CanChallenge(seat) && b.rng.Float64() < b.ChallengeRate {
			return command(events.CommandChallenge, seat, nil), true
		}
		return command(events.CommandPass, seat, nil), true
	case engine.PhaseBlockWindow:
		if b.rng.Float64() < b.SilenceRate {
			return events.PlayerCommand{}, false
		}
		if roles := t.BlockRoles(seat); len(roles) > 0 && b.rng.Float64() < b.BlockRate {
			role := roles[b.rng.IntN(len(roles))]
			return command(events.CommandBlock, seat, engine.BlockCommand{Role: string(role)}), true
		}
		return command(events.CommandPass, seat, nil), true
	case engine.PhaseAwaitingInfluenceLoss:
		p, ok := t.Player(seat)
		if !ok || p.Influence() == 0 {
			return events.PlayerCommand{}, false
		}
		return command(events.CommandChooseInfluence, seat, engine.InfluenceChoice{CardIndex: b.rng.IntN(p.Influence())}), true
	case engine.PhaseAwaitingExchange:
		p, ok := t.Player(seat)
		if !ok || p.Influence() < b.draws {
			return events.PlayerCommand{}, false
		}
		picks := b.rng.Perm(p.Influence())[:b.draws]
		return command(events.CommandChooseExchange, seat, engine.ExchangeChoice{CardIndices: picks}), true
	}
	return events.PlayerCommand{}, false
}

func (b *RandomBot) propose(t Table, seat string) (events.PlayerCommand, bool) {
	legal := t.LegalActions(seat)
	if len(legal) == 0 {
		return events.PlayerCommand{}, false
	}
	action := legal[b.rng.IntN(len(legal))]
	if slices.Contains(legal, catalog.ActionCoup) {
		action = catalog.ActionCoup
	}
	cmd := engine.ProposeCommand{Action: string(action)}
	if a, err := b.cat.Action(action); err == nil && a.Targeted {
		targets := t.Targets(seat)
		if len(targets) == 0 {
			return events.PlayerCommand{}, false
		}
		cmd.Target = targets[b.rng.IntN(len(targets))]
	}
	return command(events.CommandProposeAction, seat, cmd), true
}

func command(t events.CommandType, seat string, payload any) events.PlayerCommand {
	cmd := events.PlayerCommand{Type: t, Seat: seat}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			cmd.Payload = raw
		}
	}
	return cmd
}
