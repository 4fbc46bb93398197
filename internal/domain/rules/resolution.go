// Package rules contains the pure resolution logic for challenges and blocks.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"fmt"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
	"github.com/MRamiBalles/coup-server/internal/domain/player"
)

// ChallengeOutcome is the result of challenging a role claim.
type ChallengeOutcome struct {
	ClaimantWins bool
	LoserID      string // seat that must lose one influence
}

// ResolveChallenge decides a challenge against claimant's claim of role.
// A claimant holding the role wins and the challenger loses influence;
// otherwise the claimant loses influence.
func ResolveChallenge(claimant *player.Player, role catalog.Role, challenger *player.Player) ChallengeOutcome {
	if claimant.RevealForChallenge(role) {
		return ChallengeOutcome{ClaimantWins: true, LoserID: challenger.ID}
	}
	return ChallengeOutcome{ClaimantWins: false, LoserID: claimant.ID}
}

// BlockOutcome is the result of a block, challenged or not.
type BlockOutcome struct {
	BlockHolds bool
	Challenged bool
	LoserID    string // empty when the block was not challenged
}

// ResolveBlock decides a block claiming role. A nil challenger means nobody
// challenged and the block holds.
func ResolveBlock(blocker *player.Player, role catalog.Role, challenger *player.Player) BlockOutcome {
	if challenger == nil {
		return BlockOutcome{BlockHolds: true}
	}
	c := ResolveChallenge(blocker, role, challenger)
	return BlockOutcome{BlockHolds: c.ClaimantWins, Challenged: true, LoserID: c.LoserID}
}

// Vindicate performs the reveal that follows a failed challenge: the claimant
// shows role, shuffles it back into the court deck and draws a replacement.
func Vindicate(claimant *player.Player, role catalog.Role, d *deck.Deck) (revealed, replacement deck.Card, err error) {
	revealed, err = claimant.TakeCard(role)
	if err != nil {
		return deck.Card{}, deck.Card{}, fmt.Errorf("vindicate: %w", err)
	}
	d.ReturnAndShuffle(revealed)
	drawn, err := d.Draw(1)
	if err != nil {
		return revealed, deck.Card{}, fmt.Errorf("vindicate: %w", err)
	}
	claimant.AddCards(drawn[0])
	return revealed, drawn[0], nil
}
