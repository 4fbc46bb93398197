package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
	"github.com/MRamiBalles/coup-server/internal/domain/player"
	"github.com/MRamiBalles/coup-server/internal/events"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
)

// Machine is the state machine of one Coup table.
//
// A Machine is not safe for concurrent use. The owning session serializes
// every command and expiry; the machine processes one transition at a time.
type Machine struct {
	cat    *catalog.Catalog
	deck   *deck.Deck
	logger *logger.Logger
	now    func() time.Time

	timeouts      Timeouts
	startingCoins int

	seats   []string
	players map[string]*player.Player

	phase    Phase
	current  int // index into seats
	turn     int
	claim    *PendingClaim
	win      *window
	loss     *influenceLoss
	exchange *exchangeOffer
	seq      uint64 // sequence of the open timed phase

	winner  string
	aborted bool

	outbox []events.GameEvent
}

// New deals a table: a freshly shuffled court deck, two cards and the
// starting coins per seat, first seat to act.
func New(cat *catalog.Catalog, cfg Config) (*Machine, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	m := &Machine{
		cat:           cat,
		deck:          deck.Standard(cat, cfg.Rand),
		logger:        cfg.Logger,
		now:           cfg.Now,
		timeouts:      cfg.Timeouts,
		startingCoins: cfg.StartingCoins,
		seats:         append([]string(nil), cfg.Seats...),
		players:       make(map[string]*player.Player, len(cfg.Seats)),
		turn:          1,
	}
	if m.logger == nil {
		m.logger = logger.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.startingCoins == 0 {
		m.startingCoins = DefaultStartingCoins
	}

	m.deck.Shuffle()
	for _, id := range m.seats {
		p := player.New(id, m.startingCoins)
		hand, err := m.deck.Draw(CardsPerSeat)
		if err != nil {
			return nil, fmt.Errorf("deal %s: %w", id, err)
		}
		p.AddCards(hand...)
		m.players[id] = p
	}

	m.phase = PhaseAwaitingAction
	m.emit(events.EventTypeGameStarted, "", "", GameStartedPayload{
		Seats:         append([]string(nil), m.seats...),
		StartingCoins: m.startingCoins,
		FirstSeat:     m.seats[0],
	})
	for _, id := range m.seats {
		m.emitTo(id, events.EventTypeStateSnapshot, "", "", m.View(id))
	}
	m.emit(events.EventTypeTurnAdvanced, m.seats[0], "", TurnPayload{SeatID: m.seats[0], Turn: m.turn})
	return m, nil
}

func validate(cfg Config) error {
	if len(cfg.Seats) < MinSeats || len(cfg.Seats) > MaxSeats {
		return fmt.Errorf("engine: need %d-%d seats, got %d", MinSeats, MaxSeats, len(cfg.Seats))
	}
	seen := make(map[string]bool, len(cfg.Seats))
	for _, id := range cfg.Seats {
		if id == "" {
			return fmt.Errorf("engine: empty seat id")
		}
		if seen[id] {
			return fmt.Errorf("engine: duplicate seat %q", id)
		}
		seen[id] = true
	}
	if cfg.StartingCoins < 0 {
		return fmt.Errorf("engine: negative starting coins %d", cfg.StartingCoins)
	}
	t := cfg.Timeouts
	for _, d := range []time.Duration{t.Challenge, t.Block, t.BlockChallenge, t.InfluenceChoice, t.Exchange} {
		if d < 0 {
			return fmt.Errorf("engine: negative timeout %s", d)
		}
	}
	return nil
}

// Read side.

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Current returns the seat whose turn it is.
func (m *Machine) Current() string { return m.seats[m.current] }

// Turn returns the 1-based turn counter.
func (m *Machine) Turn() int { return m.turn }

// Turns implements the session engine contract.
func (m *Machine) Turns() int { return m.turn }

// Seats returns the seat order.
func (m *Machine) Seats() []string { return append([]string(nil), m.seats...) }

// Claim returns a copy of the pending claim, if any.
func (m *Machine) Claim() (PendingClaim, bool) {
	if m.claim == nil {
		return PendingClaim{}, false
	}
	return *m.claim, true
}

// Player returns a copy of a seat's state.
func (m *Machine) Player(id string) (*player.Player, bool) {
	p, ok := m.players[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Players returns copies of every seat in seat order.
func (m *Machine) Players() []*player.Player {
	out := make([]*player.Player, 0, len(m.seats))
	for _, id := range m.seats {
		out = append(out, m.players[id].Clone())
	}
	return out
}

// DeckSize returns the number of cards in the court deck.
func (m *Machine) DeckSize() int { return m.deck.Len() }

// CardsInPlay counts every card: the deck plus each seat's face-down and
// face-up cards. It equals the catalog deck size at all times.
func (m *Machine) CardsInPlay() int {
	n := m.deck.Len()
	for _, p := range m.players {
		n += p.CardCount()
	}
	return n
}

// CoinsInPlay sums every seat's balance.
func (m *Machine) CoinsInPlay() int {
	n := 0
	for _, p := range m.players {
		n += p.Coins
	}
	return n
}

// Winner returns the winning seat once the game is over.
func (m *Machine) Winner() string { return m.winner }

// Finished reports whether the game is over.
func (m *Machine) Finished() bool { return m.phase == PhaseGameOver }

// Aborted reports whether the game ended on an internal fault.
func (m *Machine) Aborted() bool { return m.aborted }

// Deadline returns the sequence and duration of the open timed phase.
func (m *Machine) Deadline() (seq uint64, d time.Duration, ok bool) {
	if !m.phase.Timed() {
		return 0, 0, false
	}
	return m.seq, m.timeouts.forPhase(m.phase), true
}

// Awaiting returns the seats whose input the table is waiting for.
func (m *Machine) Awaiting() []string {
	switch m.phase {
	case PhaseAwaitingAction:
		return []string{m.Current()}
	case PhaseChallengeWindow, PhaseBlockWindow, PhaseBlockChallengeWindow:
		return m.win.waiting()
	case PhaseAwaitingInfluenceLoss:
		return []string{m.loss.seat}
	case PhaseAwaitingExchange:
		return []string{m.claim.ActorID}
	}
	return nil
}

// BlockRoles returns the roles seat may block the pending action with, or
// nil when seat cannot block right now.
func (m *Machine) BlockRoles(seat string) []catalog.Role {
	if m.phase != PhaseBlockWindow || !m.win.canRespond(seat) {
		return nil
	}
	roles, err := m.cat.RolesThatCanBlock(m.claim.Action)
	if err != nil {
		return nil
	}
	return roles
}

// CanChallenge reports whether seat may challenge right now.
func (m *Machine) CanChallenge(seat string) bool {
	if m.phase != PhaseChallengeWindow && m.phase != PhaseBlockChallengeWindow {
		return false
	}
	return m.win.canRespond(seat)
}

// LegalActions lists what seat may propose now. It is empty unless it is
// seat's turn to act.
func (m *Machine) LegalActions(seat string) []catalog.ActionID {
	if m.phase != PhaseAwaitingAction || seat != m.Current() {
		return nil
	}
	p := m.players[seat]
	var out []catalog.ActionID
	for _, a := range m.cat.Actions() {
		if p.Coins < a.Cost {
			continue
		}
		if p.Coins >= catalog.MandatoryCoupCoins && a.ID != catalog.ActionCoup {
			continue
		}
		if a.Targeted && len(m.targetsFor(seat)) == 0 {
			continue
		}
		out = append(out, a.ID)
	}
	return out
}

// Targets lists the seats actor may target.
func (m *Machine) Targets(actor string) []string {
	return m.targetsFor(actor)
}

func (m *Machine) targetsFor(actor string) []string {
	var out []string
	for _, id := range m.seats {
		if id != actor && !m.players[id].Eliminated {
			out = append(out, id)
		}
	}
	return out
}

// Drain returns and clears the pending outbound events.
func (m *Machine) Drain() []events.GameEvent {
	out := m.outbox
	m.outbox = nil
	return out
}

// Snapshot implements the session engine contract.
func (m *Machine) Snapshot(seat string) any {
	return m.View(seat)
}

// Event helpers.

func (m *Machine) emit(t events.EventType, actor, target string, payload any) {
	e := events.New(t, m.now(), actor, target, payload)
	e.Turn = m.turn
	m.outbox = append(m.outbox, e)
}

func (m *Machine) emitTo(recipient string, t events.EventType, actor, target string, payload any) {
	e := events.New(t, m.now(), actor, target, payload)
	e.Turn = m.turn
	e.Recipient = recipient
	m.outbox = append(m.outbox, e)
}

func (m *Machine) living() []string {
	var out []string
	for _, id := range m.seats {
		if !m.players[id].Eliminated {
			out = append(out, id)
		}
	}
	return out
}

// abort ends the game without a winner after an internal-consistency fault.
func (m *Machine) abort(err error) error {
	code, _ := apperrors.CodeOf(err)
	m.logger.Error("table aborted", zap.Error(err), zap.Int("turn", m.turn))
	m.phase = PhaseGameOver
	m.aborted = true
	m.winner = ""
	m.claim, m.win, m.loss, m.exchange = nil, nil, nil, nil
	m.emit(events.EventTypeSessionAborted, "", "", AbortPayload{Code: string(code), Message: err.Error()})
	m.emit(events.EventTypeGameOver, "", "", GameOverPayload{Turns: m.turn, Aborted: true})
	return err
}

func illegal(format string, args ...any) error {
	return apperrors.Newf(apperrors.CodeIllegalPhaseAction, format, args...)
}
