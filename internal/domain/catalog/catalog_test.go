package catalog

import (
	"errors"
	"testing"

	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

func TestStandardIsShared(t *testing.T) {
	if Standard() != Standard() {
		t.Fatal("expected Standard to return the same catalog")
	}
	if got := Standard().DeckSize(); got != 15 {
		t.Fatalf("expected 15 cards, got %d", got)
	}
}

func TestRoleOfAction(t *testing.T) {
	c := Standard()
	cases := map[ActionID]Role{
		ActionIncome:      RoleNone,
		ActionForeignAid:  RoleNone,
		ActionCoup:        RoleNone,
		ActionTax:         RoleDuke,
		ActionAssassinate: RoleAssassin,
		ActionExchange:    RoleAmbassador,
		ActionSteal:       RoleCaptain,
	}
	for id, want := range cases {
		got, err := c.RoleOfAction(id)
		if err != nil {
			t.Fatalf("RoleOfAction(%s): %v", id, err)
		}
		if got != want {
			t.Errorf("RoleOfAction(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestRolesThatCanBlock(t *testing.T) {
	c := Standard()
	roles, err := c.RolesThatCanBlock(ActionSteal)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[0] != RoleCaptain || roles[1] != RoleAmbassador {
		t.Fatalf("unexpected steal blockers %v", roles)
	}

	// mutating the returned slice must not leak into the catalog
	roles[0] = RoleContessa
	again, _ := c.RolesThatCanBlock(ActionSteal)
	if again[0] != RoleCaptain {
		t.Fatal("catalog was mutated through a returned slice")
	}

	for _, id := range []ActionID{ActionIncome, ActionCoup, ActionTax, ActionExchange} {
		roles, _ := c.RolesThatCanBlock(id)
		if len(roles) != 0 {
			t.Errorf("expected %s to be unblockable, got %v", id, roles)
		}
	}
}

func TestCountersMatchBlockers(t *testing.T) {
	c := Standard()
	for _, a := range c.Actions() {
		for _, r := range a.BlockedBy {
			card, err := c.Card(r)
			if err != nil {
				t.Fatal(err)
			}
			found := false
			for _, id := range card.Counters {
				if id == a.ID {
					found = true
				}
			}
			if !found {
				t.Errorf("%s blocks %s but the card does not list it as a counter", r, a.ID)
			}
		}
	}
}

func TestUnknownIdentifier(t *testing.T) {
	c := Standard()
	if _, err := c.Action("embezzle"); !errors.Is(err, apperrors.ErrUnknownIdentifier) {
		t.Errorf("expected UNKNOWN_IDENTIFIER, got %v", err)
	}
	if _, err := c.RoleOfAction("embezzle"); !errors.Is(err, apperrors.ErrUnknownIdentifier) {
		t.Errorf("expected UNKNOWN_IDENTIFIER, got %v", err)
	}
	if _, err := c.Card("inquisitor"); !errors.Is(err, apperrors.ErrUnknownIdentifier) {
		t.Errorf("expected UNKNOWN_IDENTIFIER, got %v", err)
	}
}

func TestParse(t *testing.T) {
	c := Standard()
	for _, in := range []string{"Foreign Aid", "foreign_aid", "FOREIGN-AID", " foreignaid "} {
		id, err := c.ParseAction(in)
		if err != nil || id != ActionForeignAid {
			t.Errorf("ParseAction(%q) = %q, %v", in, id, err)
		}
	}
	if r, err := c.ParseRole("Contessa"); err != nil || r != RoleContessa {
		t.Errorf("ParseRole(Contessa) = %q, %v", r, err)
	}
	if _, err := c.ParseRole("jester"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestActionsByName(t *testing.T) {
	byName := Standard().ActionsByName()
	if len(byName) != 7 {
		t.Fatalf("expected 7 actions, got %d", len(byName))
	}
	coup, ok := byName["Coup"]
	if !ok || coup.Cost != 7 || !coup.Targeted || coup.Challengeable || coup.Blockable() {
		t.Fatalf("unexpected coup metadata %+v", coup)
	}
}

func TestEffect(t *testing.T) {
	c := Standard()
	steal, _ := c.Action(ActionSteal)
	for coins, want := range map[int]int{0: 0, 1: 1, 2: 2, 5: 2} {
		d := steal.Effect(coins)
		if d.ActorCoins != want || d.TargetCoins != -want {
			t.Errorf("steal from %d coins: got %+v, want %d", coins, d, want)
		}
	}

	tax, _ := c.Action(ActionTax)
	if d := tax.Effect(0); d.ActorCoins != 3 {
		t.Errorf("tax: got %+v", d)
	}
	assassinate, _ := c.Action(ActionAssassinate)
	if d := assassinate.Effect(0); !d.TargetLosesInfluence || d.ActorCoins != 0 {
		t.Errorf("assassinate: got %+v", d)
	}
	exchange, _ := c.Action(ActionExchange)
	if d := exchange.Effect(0); d.ActorDraws != 2 {
		t.Errorf("exchange: got %+v", d)
	}
}
