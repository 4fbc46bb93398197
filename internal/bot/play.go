package bot

import (
	"fmt"
	"math/rand/v2"

	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

// Outcome summarizes a headless game.
type Outcome struct {
	Winner     string
	Turns      int
	Steps      int
	Commands   int
	Expiries   int
	Rejections int
	Events     int
}

// Observer sees every event drained from the table.
type Observer func(e events.GameEvent)

// Play runs m to the end. Each step either applies one bot command, chosen
// among the awaited seats in random order, or expires the open window when
// every awaited bot stays silent. Card conservation is checked after every
// step.
func Play(m *engine.Machine, bots map[string]Bot, rng *rand.Rand, maxSteps int, observe Observer) (Outcome, error) {
	var out Outcome
	drain := func() {
		for _, e := range m.Drain() {
			out.Events++
			if observe != nil {
				observe(e)
			}
		}
	}
	drain()
	cards := m.CardsInPlay()

	for !m.Finished() {
		if out.Steps >= maxSteps {
			return out, fmt.Errorf("no winner after %d steps (turn %d, phase %s)", maxSteps, m.Turn(), m.Phase())
		}
		out.Steps++

		awaiting := m.Awaiting()
		rng.Shuffle(len(awaiting), func(i, j int) { awaiting[i], awaiting[j] = awaiting[j], awaiting[i] })
		acted := false
		for _, seat := range awaiting {
			b, ok := bots[seat]
			if !ok {
				continue
			}
			cmd, ok := b.Act(m, seat)
			if !ok {
				continue
			}
			err := m.Apply(cmd)
			if apperrors.IsFatal(err) {
				drain()
				return out, fmt.Errorf("turn %d: %w", m.Turn(), err)
			}
			if err != nil {
				out.Rejections++
				continue
			}
			out.Commands++
			acted = true
			break
		}
		if !acted {
			seq, _, ok := m.Deadline()
			if !ok {
				return out, fmt.Errorf("turn %d: stuck in %s with nobody able to act", m.Turn(), m.Phase())
			}
			if err := m.Expire(seq); err != nil {
				return out, fmt.Errorf("turn %d: expire: %w", m.Turn(), err)
			}
			out.Expiries++
		}
		drain()

		if n := m.CardsInPlay(); n != cards {
			return out, fmt.Errorf("turn %d: %d cards accounted for, want %d", m.Turn(), n, cards)
		}
		for _, p := range m.Players() {
			if p.Coins < 0 {
				return out, fmt.Errorf("turn %d: %s has %d coins", m.Turn(), p.ID, p.Coins)
			}
		}
	}
	out.Winner = m.Winner()
	out.Turns = m.Turn()
	return out, nil
}
