// Package player defines the seat entity of a Coup table.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package player

import (
	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

// Player represents the state of a participant at the table.
type Player struct {
	ID    string `json:"id"`
	Coins int    `json:"coins"`

	// Influence
	Hand     []deck.Card `json:"hand"`     // face-down
	Revealed []deck.Card `json:"revealed"` // lost influence, face-up

	Eliminated bool `json:"eliminated"`
}

// New creates a seat with a starting balance and no cards.
func New(id string, coins int) *Player {
	return &Player{
		ID:       id,
		Coins:    coins,
		Hand:     []deck.Card{},
		Revealed: []deck.Card{},
	}
}

// Influence is the number of face-down cards still held.
func (p *Player) Influence() int {
	return len(p.Hand)
}

// Alive reports whether the seat still has influence.
func (p *Player) Alive() bool {
	return !p.Eliminated
}

// Credit adds coins.
func (p *Player) Credit(n int) {
	p.Coins += n
}

// Debit removes coins, failing with INSUFFICIENT_FUNDS when the balance is short.
func (p *Player) Debit(n int) error {
	if n > p.Coins {
		return apperrors.Newf(apperrors.CodeInsufficientFunds, "%s has %d, needs %d", p.ID, p.Coins, n)
	}
	p.Coins -= n
	return nil
}

// LoseInfluence turns the card at index face-up. With a single card left the
// index is ignored. The seat is eliminated once its hand is empty.
func (p *Player) LoseInfluence(index int) (deck.Card, error) {
	if len(p.Hand) == 0 {
		return deck.Card{}, apperrors.Newf(apperrors.CodeInvalidChoice, "%s has no influence left", p.ID)
	}
	if len(p.Hand) == 1 {
		index = 0
	}
	if index < 0 || index >= len(p.Hand) {
		return deck.Card{}, apperrors.Newf(apperrors.CodeInvalidChoice, "card index %d out of range", index)
	}
	lost := p.Hand[index]
	p.Hand = append(p.Hand[:index:index], p.Hand[index+1:]...)
	p.Revealed = append(p.Revealed, lost)
	if len(p.Hand) == 0 {
		p.Eliminated = true
	}
	return lost, nil
}

// Holds reports whether a face-down card of role is in hand. It does not
// change the hand.
func (p *Player) Holds(role catalog.Role) bool {
	return p.indexOf(role) >= 0
}

// RevealForChallenge is Holds under the name the resolution engine uses.
func (p *Player) RevealForChallenge(role catalog.Role) bool {
	return p.Holds(role)
}

// TakeCard removes the first card of role from the hand.
func (p *Player) TakeCard(role catalog.Role) (deck.Card, error) {
	i := p.indexOf(role)
	if i < 0 {
		return deck.Card{}, apperrors.Newf(apperrors.CodeInvalidChoice, "%s does not hold %s", p.ID, role)
	}
	c := p.Hand[i]
	p.Hand = append(p.Hand[:i:i], p.Hand[i+1:]...)
	return c, nil
}

// AddCards puts cards into the hand.
func (p *Player) AddCards(cards ...deck.Card) {
	p.Hand = append(p.Hand, cards...)
}

// RemoveCards removes the cards at the given distinct indices and returns
// them in index order.
func (p *Player) RemoveCards(indices []int) ([]deck.Card, error) {
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(p.Hand) {
			return nil, apperrors.Newf(apperrors.CodeInvalidChoice, "card index %d out of range", i)
		}
		if seen[i] {
			return nil, apperrors.Newf(apperrors.CodeInvalidChoice, "card index %d repeated", i)
		}
		seen[i] = true
	}
	removed := make([]deck.Card, 0, len(indices))
	kept := make([]deck.Card, 0, len(p.Hand)-len(indices))
	for i, c := range p.Hand {
		if seen[i] {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	p.Hand = kept
	return removed, nil
}

// CardCount is every card the seat physically holds, face-down or face-up.
func (p *Player) CardCount() int {
	return len(p.Hand) + len(p.Revealed)
}

// Clone returns a deep copy.
func (p *Player) Clone() *Player {
	c := *p
	c.Hand = append([]deck.Card{}, p.Hand...)
	c.Revealed = append([]deck.Card{}, p.Revealed...)
	return &c
}

func (p *Player) indexOf(role catalog.Role) int {
	for i, c := range p.Hand {
		if c.Role == role {
			return i
		}
	}
	return -1
}
