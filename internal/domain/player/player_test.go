package player

import (
	"errors"
	"testing"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

func newHand(roles ...catalog.Role) *Player {
	p := New("alice", 2)
	for _, r := range roles {
		p.AddCards(deck.Card{Role: r})
	}
	return p
}

func TestDebit(t *testing.T) {
	p := New("alice", 3)
	if err := p.Debit(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Coins != 0 {
		t.Errorf("expected 0 coins, got %d", p.Coins)
	}
	if err := p.Debit(1); !errors.Is(err, apperrors.ErrInsufficientFunds) {
		t.Errorf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if p.Coins != 0 {
		t.Error("failed debit must not change the balance")
	}
}

func TestLoseInfluenceByIndex(t *testing.T) {
	p := newHand(catalog.RoleDuke, catalog.RoleContessa)
	lost, err := p.LoseInfluence(1)
	if err != nil {
		t.Fatal(err)
	}
	if lost.Role != catalog.RoleContessa {
		t.Errorf("expected to lose contessa, lost %s", lost.Role)
	}
	if p.Influence() != 1 || len(p.Revealed) != 1 || p.Eliminated {
		t.Errorf("unexpected state after first loss: %+v", p)
	}
	if p.CardCount() != 2 {
		t.Errorf("revealed cards must stay with the player, count=%d", p.CardCount())
	}
}

func TestLoseLastInfluenceIgnoresIndex(t *testing.T) {
	p := newHand(catalog.RoleAssassin)
	lost, err := p.LoseInfluence(5)
	if err != nil {
		t.Fatal(err)
	}
	if lost.Role != catalog.RoleAssassin || !p.Eliminated {
		t.Errorf("expected elimination with assassin revealed, got %+v", p)
	}
	if _, err := p.LoseInfluence(0); !errors.Is(err, apperrors.ErrInvalidChoice) {
		t.Errorf("expected INVALID_CHOICE on empty hand, got %v", err)
	}
}

func TestLoseInfluenceBadIndex(t *testing.T) {
	p := newHand(catalog.RoleDuke, catalog.RoleDuke)
	if _, err := p.LoseInfluence(2); !errors.Is(err, apperrors.ErrInvalidChoice) {
		t.Errorf("expected INVALID_CHOICE, got %v", err)
	}
	if p.Influence() != 2 {
		t.Error("rejected choice must not change the hand")
	}
}

func TestRevealForChallengeDoesNotMutate(t *testing.T) {
	p := newHand(catalog.RoleCaptain, catalog.RoleDuke)
	if !p.RevealForChallenge(catalog.RoleDuke) {
		t.Error("expected duke to be held")
	}
	if p.RevealForChallenge(catalog.RoleContessa) {
		t.Error("expected contessa not to be held")
	}
	if p.Influence() != 2 {
		t.Error("reveal must not change the hand")
	}
}

func TestTakeCard(t *testing.T) {
	p := newHand(catalog.RoleCaptain, catalog.RoleDuke)
	c, err := p.TakeCard(catalog.RoleDuke)
	if err != nil || c.Role != catalog.RoleDuke {
		t.Fatalf("TakeCard = %v, %v", c, err)
	}
	if p.Influence() != 1 || p.Hand[0].Role != catalog.RoleCaptain {
		t.Errorf("unexpected hand %v", p.Hand)
	}
	if _, err := p.TakeCard(catalog.RoleDuke); err == nil {
		t.Error("expected error taking a card not held")
	}
}

func TestRemoveCards(t *testing.T) {
	p := newHand(catalog.RoleDuke, catalog.RoleCaptain, catalog.RoleContessa, catalog.RoleAssassin)
	removed, err := p.RemoveCards([]int{3, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 || removed[0].Role != catalog.RoleCaptain || removed[1].Role != catalog.RoleAssassin {
		t.Errorf("unexpected removed cards %v", removed)
	}
	if len(p.Hand) != 2 || p.Hand[0].Role != catalog.RoleDuke || p.Hand[1].Role != catalog.RoleContessa {
		t.Errorf("unexpected remaining hand %v", p.Hand)
	}

	if _, err := p.RemoveCards([]int{0, 0}); !errors.Is(err, apperrors.ErrInvalidChoice) {
		t.Errorf("expected INVALID_CHOICE for repeated index, got %v", err)
	}
	if _, err := p.RemoveCards([]int{4}); !errors.Is(err, apperrors.ErrInvalidChoice) {
		t.Errorf("expected INVALID_CHOICE for out of range index, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := newHand(catalog.RoleDuke)
	c := p.Clone()
	c.Hand[0].Role = catalog.RoleContessa
	c.Coins = 99
	if p.Hand[0].Role != catalog.RoleDuke || p.Coins != 2 {
		t.Error("clone shares state with the original")
	}
}
