package engine

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/rules"
	"github.com/MRamiBalles/coup-server/internal/events"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
)

// ProposeAction starts the current seat's turn. target is empty for
// untargeted actions.
func (m *Machine) ProposeAction(seat string, id catalog.ActionID, target string) error {
	if m.phase != PhaseAwaitingAction {
		return illegal("cannot propose during %s", m.phase)
	}
	if seat != m.Current() {
		return illegal("it is %s's turn", m.Current())
	}
	actor := m.players[seat]
	if actor.Eliminated {
		return illegal("%s is eliminated", seat)
	}
	action, err := m.cat.Action(id)
	if err != nil {
		return err
	}
	if action.Cost > 0 && actor.Coins < action.Cost {
		return apperrors.Newf(apperrors.CodeCannotAfford, "%s costs %d, %s has %d", action.Name, action.Cost, seat, actor.Coins)
	}
	if action.Targeted {
		t, ok := m.players[target]
		switch {
		case !ok:
			return apperrors.Newf(apperrors.CodeInvalidTarget, "unknown seat %q", target)
		case target == seat:
			return apperrors.New(apperrors.CodeInvalidTarget, "cannot target yourself")
		case t.Eliminated:
			return apperrors.Newf(apperrors.CodeInvalidTarget, "%s is eliminated", target)
		}
	} else if target != "" {
		return apperrors.Newf(apperrors.CodeInvalidTarget, "%s takes no target", action.Name)
	}
	if actor.Coins >= catalog.MandatoryCoupCoins && action.ID != catalog.ActionCoup {
		return apperrors.Newf(apperrors.CodeMustCoup, "%s holds %d coins", seat, actor.Coins)
	}

	if err := actor.Debit(action.Cost); err != nil {
		return m.abort(err)
	}
	m.claim = &PendingClaim{
		ActorID:     seat,
		Action:      action.ID,
		TargetID:    target,
		ClaimedRole: action.ClaimedRole,
	}
	m.logger.Debug("action proposed", zap.String("seat", seat), zap.String("action", string(action.ID)), zap.String("target", target))
	m.emit(events.EventTypeActionProposed, seat, target, ActionProposedPayload{
		Action:      action.ID,
		Name:        action.Name,
		ClaimedRole: action.ClaimedRole,
		Cost:        action.Cost,
		CoinsLeft:   actor.Coins,
	})

	switch {
	case action.Challengeable:
		m.openChallengeWindow()
		return nil
	case action.Blockable():
		return m.openBlockWindow()
	default:
		return m.resolve()
	}
}

// Challenge disputes the open claim: the actor's role in a challenge window
// or the blocker's role in a block challenge window.
func (m *Machine) Challenge(seat string) error {
	if m.phase != PhaseChallengeWindow && m.phase != PhaseBlockChallengeWindow {
		return illegal("no claim to challenge during %s", m.phase)
	}
	if !m.win.canRespond(seat) {
		return illegal("%s may not challenge now", seat)
	}
	if !m.win.claim() {
		return illegal("a response was already accepted")
	}
	if m.phase == PhaseChallengeWindow {
		return m.challengeAction(seat)
	}
	return m.challengeBlock(seat)
}

// Block counters the pending action claiming role.
func (m *Machine) Block(seat string, role catalog.Role) error {
	if m.phase != PhaseBlockWindow {
		return illegal("cannot block during %s", m.phase)
	}
	if !m.win.canRespond(seat) {
		return illegal("%s may not block now", seat)
	}
	action, err := m.cat.Action(m.claim.Action)
	if err != nil {
		return m.abort(err)
	}
	if !action.CanBeBlockedBy(role) {
		return apperrors.Newf(apperrors.CodeInvalidChoice, "%s cannot block %s", role, action.Name)
	}
	if !m.win.claim() {
		return illegal("a block was already accepted")
	}

	m.claim.BlockerID = seat
	m.claim.BlockedRole = role
	m.closeWindow(CloseBlocked)
	m.emit(events.EventTypeBlockAnnounced, seat, m.claim.ActorID, BlockAnnouncedPayload{
		BlockerID: seat,
		Role:      role,
		Action:    action.ID,
	})
	m.openBlockChallengeWindow()
	return nil
}

// Pass declines to respond in the open window. The window closes as soon as
// every eligible seat has passed.
func (m *Machine) Pass(seat string) error {
	if !m.phase.IsWindow() {
		return illegal("nothing to pass during %s", m.phase)
	}
	if !m.win.canRespond(seat) {
		return illegal("%s may not respond now", seat)
	}
	if !m.win.pass(seat) {
		return nil
	}
	return m.noResponse(CloseAllPassed)
}

// ChooseInfluenceToLose settles a pending influence loss.
func (m *Machine) ChooseInfluenceToLose(seat string, index int) error {
	if m.phase != PhaseAwaitingInfluenceLoss || m.loss == nil {
		return illegal("no influence loss pending")
	}
	if seat != m.loss.seat {
		return illegal("%s is not choosing", seat)
	}
	p := m.players[seat]
	if index < 0 || index >= p.Influence() {
		return apperrors.Newf(apperrors.CodeInvalidChoice, "card index %d out of range", index)
	}
	loss := *m.loss
	m.loss = nil
	return m.applyLoss(loss, index)
}

// ChooseExchangeReturn finishes an exchange by returning cards to the deck.
func (m *Machine) ChooseExchangeReturn(seat string, indices []int) error {
	if m.phase != PhaseAwaitingExchange || m.exchange == nil {
		return illegal("no exchange pending")
	}
	if seat != m.claim.ActorID {
		return illegal("%s is not exchanging", seat)
	}
	if want := len(m.exchange.drawn); len(indices) != want {
		return apperrors.Newf(apperrors.CodeInvalidChoice, "return exactly %d cards", want)
	}
	return m.completeExchange(indices)
}

// Expire closes the timed phase opened with seq as if nobody responded.
// Stale sequence numbers are ignored.
func (m *Machine) Expire(seq uint64) error {
	if !m.phase.Timed() || seq != m.seq {
		return nil
	}
	switch m.phase {
	case PhaseAwaitingInfluenceLoss:
		loss := *m.loss
		m.loss = nil
		return m.applyLoss(loss, 0)
	case PhaseAwaitingExchange:
		return m.completeExchange(m.exchange.drawn)
	}
	return m.noResponse(CloseTimeout)
}

// Apply decodes a transport command and dispatches it.
func (m *Machine) Apply(cmd events.PlayerCommand) error {
	switch cmd.Type {
	case events.CommandProposeAction:
		var p ProposeCommand
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		id, err := m.cat.ParseAction(p.Action)
		if err != nil {
			return err
		}
		return m.ProposeAction(cmd.Seat, id, p.Target)
	case events.CommandChallenge:
		return m.Challenge(cmd.Seat)
	case events.CommandBlock:
		var p BlockCommand
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		role, err := m.cat.ParseRole(p.Role)
		if err != nil {
			return err
		}
		return m.Block(cmd.Seat, role)
	case events.CommandChooseInfluence:
		var p InfluenceChoice
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		return m.ChooseInfluenceToLose(cmd.Seat, p.CardIndex)
	case events.CommandChooseExchange:
		var p ExchangeChoice
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		return m.ChooseExchangeReturn(cmd.Seat, p.CardIndices)
	case events.CommandPass:
		return m.Pass(cmd.Seat)
	}
	return apperrors.Newf(apperrors.CodeUnknownIdentifier, "unknown command %q", cmd.Type)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return apperrors.New(apperrors.CodeInvalidChoice, "missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidChoice, "malformed payload", err)
	}
	return nil
}

func (m *Machine) challengeAction(challengerID string) error {
	claim := *m.claim
	m.closeWindow(CloseChallenged)

	claimant, challenger := m.players[claim.ActorID], m.players[challengerID]
	out := rules.ResolveChallenge(claimant, claim.ClaimedRole, challenger)
	m.emit(events.EventTypeChallengeResolved, challengerID, claim.ActorID, ChallengeResolvedPayload{
		ClaimantID:   claim.ActorID,
		ChallengerID: challengerID,
		Role:         claim.ClaimedRole,
		ClaimantWins: out.ClaimantWins,
	})

	if !out.ClaimantWins {
		m.emit(events.EventTypeActionCancelled, claim.ActorID, claim.TargetID, ClaimPayload{Claim: claim, Reason: LossCaughtBluffing})
		return m.loseInfluence(claim.ActorID, LossCaughtBluffing, thenEndTurn)
	}
	if err := m.vindicate(claim.ActorID, claim.ClaimedRole); err != nil {
		return err
	}
	return m.loseInfluence(challengerID, LossFailedChallenge, thenAfterChallenge)
}

func (m *Machine) challengeBlock(challengerID string) error {
	claim := *m.claim
	m.closeWindow(CloseChallenged)

	blocker, challenger := m.players[claim.BlockerID], m.players[challengerID]
	out := rules.ResolveBlock(blocker, claim.BlockedRole, challenger)
	m.emit(events.EventTypeChallengeResolved, challengerID, claim.BlockerID, ChallengeResolvedPayload{
		ClaimantID:   claim.BlockerID,
		ChallengerID: challengerID,
		Role:         claim.BlockedRole,
		ClaimantWins: out.BlockHolds,
		AgainstBlock: true,
	})

	if !out.BlockHolds {
		return m.loseInfluence(claim.BlockerID, LossCaughtBluffing, thenResolve)
	}
	if err := m.vindicate(claim.BlockerID, claim.BlockedRole); err != nil {
		return err
	}
	m.emit(events.EventTypeActionBlocked, claim.BlockerID, claim.ActorID, ClaimPayload{Claim: claim})
	return m.loseInfluence(challengerID, LossFailedChallenge, thenEndTurn)
}

func (m *Machine) vindicate(seat string, role catalog.Role) error {
	revealed, replacement, err := rules.Vindicate(m.players[seat], role, m.deck)
	if err != nil {
		return m.abort(err)
	}
	m.emit(events.EventTypeCardRevealed, seat, "", CardPayload{SeatID: seat, Role: revealed.Role, Reason: "vindicated"})
	m.emit(events.EventTypeCardReplaced, seat, "", CardPayload{SeatID: seat})
	m.emitTo(seat, events.EventTypeCardReplaced, seat, "", CardPayload{SeatID: seat, Role: replacement.Role, Reason: "drawn"})
	return nil
}
