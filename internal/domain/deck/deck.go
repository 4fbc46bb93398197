// Package deck models the court deck of face-down role cards.
// This package is PURE and must NOT import any infrastructure packages.
package deck

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

// Card is a single role card.
type Card struct {
	Role catalog.Role `json:"role"`
}

// Deck is the ordered court deck. Index 0 is the top.
// A Deck is owned by exactly one table and is not safe for concurrent use.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewSeededRand returns a PCG generator seeded from crypto/rand.
func NewSeededRand() *rand.Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("deck: read seed: " + err.Error())
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])))
}

// NewRand returns a deterministic generator for a fixed seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// New creates a deck holding cards in the given order. A nil rng gets a
// crypto-seeded generator.
func New(rng *rand.Rand, cards ...Card) *Deck {
	if rng == nil {
		rng = NewSeededRand()
	}
	return &Deck{cards: append([]Card(nil), cards...), rng: rng}
}

// Standard builds the unshuffled court deck for a catalog: every role,
// catalog.CopiesPerRole times.
func Standard(cat *catalog.Catalog, rng *rand.Rand) *Deck {
	roles := cat.Roles()
	cards := make([]Card, 0, len(roles)*catalog.CopiesPerRole)
	for _, r := range roles {
		for i := 0; i < catalog.CopiesPerRole; i++ {
			cards = append(cards, Card{Role: r})
		}
	}
	return New(rng, cards...)
}

// Shuffle permutes the whole deck uniformly (Fisher-Yates).
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes n cards from the top. It fails with INSUFFICIENT_CARDS and
// leaves the deck untouched when fewer than n remain.
func (d *Deck) Draw(n int) ([]Card, error) {
	if n < 0 || n > len(d.cards) {
		return nil, apperrors.Newf(apperrors.CodeInsufficientCards, "draw %d from %d", n, len(d.cards))
	}
	drawn := append([]Card(nil), d.cards[:n]...)
	d.cards = append(d.cards[:0:0], d.cards[n:]...)
	return drawn, nil
}

// ReturnAndShuffle puts cards back and reshuffles the whole deck.
func (d *Deck) ReturnAndShuffle(cards ...Card) {
	d.cards = append(d.cards, cards...)
	d.Shuffle()
}

// Len returns the number of cards left.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards returns a copy of the deck in draw order.
func (d *Deck) Cards() []Card {
	return append([]Card(nil), d.cards...)
}

// Count returns how many cards of role remain.
func (d *Deck) Count(role catalog.Role) int {
	n := 0
	for _, c := range d.cards {
		if c.Role == role {
			n++
		}
	}
	return n
}
