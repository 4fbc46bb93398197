// Package catalog is the static registry of Coup roles and actions.
// This package is PURE and must NOT import any infrastructure packages.
//
// The catalog is built once per process and shared by reference between
// every running table. Nothing mutates it after construction, so it is safe
// to read concurrently without locks.
package catalog

import (
	"strings"
	"sync"

	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

// Role identifies a character card.
type Role string

const (
	RoleNone       Role = ""
	RoleDuke       Role = "duke"
	RoleAssassin   Role = "assassin"
	RoleCaptain    Role = "captain"
	RoleAmbassador Role = "ambassador"
	RoleContessa   Role = "contessa"
)

// ActionID identifies an action a seat can take on its turn.
type ActionID string

const (
	ActionIncome      ActionID = "income"
	ActionForeignAid  ActionID = "foreign_aid"
	ActionCoup        ActionID = "coup"
	ActionTax         ActionID = "tax"
	ActionAssassinate ActionID = "assassinate"
	ActionExchange    ActionID = "exchange"
	ActionSteal       ActionID = "steal"
)

// CopiesPerRole is how many cards of each role the court deck holds.
const CopiesPerRole = 3

// MandatoryCoupCoins is the balance at which Coup becomes the only legal action.
const MandatoryCoupCoins = 10

// Action describes the rules metadata of an action.
type Action struct {
	ID            ActionID
	Name          string
	Description   string
	Cost          int
	ClaimedRole   Role // role implicitly claimed by proposing the action
	BlockedBy     []Role
	Challengeable bool
	Targeted      bool
}

// Blockable reports whether any role can block the action.
func (a Action) Blockable() bool {
	return len(a.BlockedBy) > 0
}

// CanBeBlockedBy reports whether role is one of the action's blockers.
func (a Action) CanBeBlockedBy(role Role) bool {
	for _, r := range a.BlockedBy {
		if r == role {
			return true
		}
	}
	return false
}

// Delta is the state change an action's effect produces.
type Delta struct {
	ActorCoins           int // credited to the actor
	TargetCoins          int // added to the target (negative for Steal)
	TargetLosesInfluence bool
	ActorDraws           int // cards drawn for an exchange
}

// Effect computes the action's effect. targetCoins is the target's balance
// at resolution time and is ignored by untargeted actions.
func (a Action) Effect(targetCoins int) Delta {
	switch a.ID {
	case ActionIncome:
		return Delta{ActorCoins: 1}
	case ActionForeignAid:
		return Delta{ActorCoins: 2}
	case ActionTax:
		return Delta{ActorCoins: 3}
	case ActionCoup, ActionAssassinate:
		return Delta{TargetLosesInfluence: true}
	case ActionExchange:
		return Delta{ActorDraws: 2}
	case ActionSteal:
		amount := StealAmount(targetCoins)
		return Delta{ActorCoins: amount, TargetCoins: -amount}
	}
	return Delta{}
}

// StealAmount is how much a Steal takes from a target holding coins.
func StealAmount(coins int) int {
	if coins < 2 {
		if coins < 0 {
			return 0
		}
		return coins
	}
	return 2
}

// RoleCard maps a role to the action it grants and the actions it counters.
type RoleCard struct {
	Role     Role
	Name     string
	Action   ActionID // ActionID("") for Contessa
	Counters []ActionID
}

// Catalog is the immutable registry of roles and actions.
type Catalog struct {
	actions map[ActionID]Action
	order   []ActionID
	cards   map[Role]RoleCard
	roles   []Role
}

var (
	standardOnce sync.Once
	standard     *Catalog
)

// Standard returns the shared base-game catalog.
func Standard() *Catalog {
	standardOnce.Do(func() {
		standard = build()
	})
	return standard
}

func build() *Catalog {
	actions := []Action{
		{ID: ActionIncome, Name: "Income", Description: "Take 1 coin. Cannot be blocked or challenged."},
		{ID: ActionForeignAid, Name: "Foreign Aid", Description: "Take 2 coins. Cannot be challenged. Can be blocked by a player claiming Duke.",
			BlockedBy: []Role{RoleDuke}},
		{ID: ActionCoup, Name: "Coup", Description: "Pay 7 coins, choose a player to lose influence. Cannot be blocked or challenged.",
			Cost: 7, Targeted: true},
		{ID: ActionTax, Name: "Tax", Description: "Take 3 coins. Cannot be blocked.",
			ClaimedRole: RoleDuke, Challengeable: true},
		{ID: ActionAssassinate, Name: "Assassinate", Description: "Pay 3 coins, choose a player to lose influence. Can be blocked by Contessa.",
			Cost: 3, ClaimedRole: RoleAssassin, BlockedBy: []Role{RoleContessa}, Challengeable: true, Targeted: true},
		{ID: ActionExchange, Name: "Exchange", Description: "Take 2 cards, return 2 cards to the court deck. Cannot be blocked.",
			ClaimedRole: RoleAmbassador, Challengeable: true},
		{ID: ActionSteal, Name: "Steal", Description: "Take 2 coins from another player. Can be blocked by Captain or Ambassador.",
			ClaimedRole: RoleCaptain, BlockedBy: []Role{RoleCaptain, RoleAmbassador}, Challengeable: true, Targeted: true},
	}
	cards := []RoleCard{
		{Role: RoleDuke, Name: "Duke", Action: ActionTax, Counters: []ActionID{ActionForeignAid}},
		{Role: RoleAssassin, Name: "Assassin", Action: ActionAssassinate},
		{Role: RoleCaptain, Name: "Captain", Action: ActionSteal, Counters: []ActionID{ActionSteal}},
		{Role: RoleAmbassador, Name: "Ambassador", Action: ActionExchange, Counters: []ActionID{ActionSteal}},
		{Role: RoleContessa, Name: "Contessa", Counters: []ActionID{ActionAssassinate}},
	}

	c := &Catalog{
		actions: make(map[ActionID]Action, len(actions)),
		cards:   make(map[Role]RoleCard, len(cards)),
	}
	for _, a := range actions {
		c.actions[a.ID] = a
		c.order = append(c.order, a.ID)
	}
	for _, rc := range cards {
		c.cards[rc.Role] = rc
		c.roles = append(c.roles, rc.Role)
	}
	return c
}

func unknown(kind, id string) error {
	return apperrors.Newf(apperrors.CodeUnknownIdentifier, "unknown %s %q", kind, id)
}

// Action looks up an action by id.
func (c *Catalog) Action(id ActionID) (Action, error) {
	a, ok := c.actions[id]
	if !ok {
		return Action{}, unknown("action", string(id))
	}
	return cloneAction(a), nil
}

// Actions returns every action in table order.
func (c *Catalog) Actions() []Action {
	out := make([]Action, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneAction(c.actions[id]))
	}
	return out
}

// ActionsByName returns the actions keyed by display name.
func (c *Catalog) ActionsByName() map[string]Action {
	out := make(map[string]Action, len(c.actions))
	for _, a := range c.actions {
		out[a.Name] = cloneAction(a)
	}
	return out
}

// RoleOfAction returns the role an action claims, RoleNone for general actions.
func (c *Catalog) RoleOfAction(id ActionID) (Role, error) {
	a, ok := c.actions[id]
	if !ok {
		return RoleNone, unknown("action", string(id))
	}
	return a.ClaimedRole, nil
}

// RolesThatCanBlock returns the roles that may block an action.
func (c *Catalog) RolesThatCanBlock(id ActionID) ([]Role, error) {
	a, ok := c.actions[id]
	if !ok {
		return nil, unknown("action", string(id))
	}
	return append([]Role(nil), a.BlockedBy...), nil
}

// Card returns the role card metadata.
func (c *Catalog) Card(role Role) (RoleCard, error) {
	rc, ok := c.cards[role]
	if !ok {
		return RoleCard{}, unknown("role", string(role))
	}
	rc.Counters = append([]ActionID(nil), rc.Counters...)
	return rc, nil
}

// Roles returns the five roles in table order.
func (c *Catalog) Roles() []Role {
	return append([]Role(nil), c.roles...)
}

// DeckSize is the total number of cards in play.
func (c *Catalog) DeckSize() int {
	return len(c.roles) * CopiesPerRole
}

// ParseAction resolves an id ("foreign_aid") or display name ("Foreign Aid").
func (c *Catalog) ParseAction(s string) (ActionID, error) {
	key := normalize(s)
	for _, id := range c.order {
		if normalize(string(id)) == key || normalize(c.actions[id].Name) == key {
			return id, nil
		}
	}
	return "", unknown("action", s)
}

// ParseRole resolves an id or display name.
func (c *Catalog) ParseRole(s string) (Role, error) {
	key := normalize(s)
	for _, r := range c.roles {
		if normalize(string(r)) == key || normalize(c.cards[r].Name) == key {
			return r, nil
		}
	}
	return RoleNone, unknown("role", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func cloneAction(a Action) Action {
	a.BlockedBy = append([]Role(nil), a.BlockedBy...)
	return a
}
