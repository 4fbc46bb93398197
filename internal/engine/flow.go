package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/events"
)

// Windows.

func (m *Machine) nextSeq() uint64 {
	m.seq++
	return m.seq
}

func (m *Machine) timeoutMS(p Phase) int64 {
	return m.timeouts.forPhase(p).Milliseconds()
}

func (m *Machine) openChallengeWindow() {
	seq := m.nextSeq()
	eligible := m.targetsFor(m.claim.ActorID)
	m.win = newWindow(seq, PhaseChallengeWindow, eligible)
	m.phase = PhaseChallengeWindow
	m.emit(events.EventTypeChallengeWindowOpened, m.claim.ActorID, m.claim.TargetID, WindowPayload{
		Seq:        seq,
		Phase:      m.phase,
		ClaimantID: m.claim.ActorID,
		Role:       m.claim.ClaimedRole,
		Eligible:   append([]string(nil), eligible...),
		TimeoutMS:  m.timeoutMS(m.phase),
	})
}

// openBlockWindow lets the legal blockers respond. Targeted actions may only
// be blocked by their target; Foreign Aid by any other living seat.
func (m *Machine) openBlockWindow() error {
	action, err := m.cat.Action(m.claim.Action)
	if err != nil {
		return m.abort(err)
	}
	var eligible []string
	if action.Targeted {
		if t := m.players[m.claim.TargetID]; t != nil && !t.Eliminated {
			eligible = []string{t.ID}
		}
	} else {
		eligible = m.targetsFor(m.claim.ActorID)
	}
	if len(eligible) == 0 {
		return m.resolve()
	}

	seq := m.nextSeq()
	m.win = newWindow(seq, PhaseBlockWindow, eligible)
	m.phase = PhaseBlockWindow
	m.emit(events.EventTypeBlockWindowOpened, m.claim.ActorID, m.claim.TargetID, WindowPayload{
		Seq:        seq,
		Phase:      m.phase,
		ClaimantID: m.claim.ActorID,
		Roles:      action.BlockedBy,
		Eligible:   append([]string(nil), eligible...),
		TimeoutMS:  m.timeoutMS(m.phase),
	})
	return nil
}

// openBlockChallengeWindow lets the original actor, and only the actor,
// dispute the blocker's claim.
func (m *Machine) openBlockChallengeWindow() {
	seq := m.nextSeq()
	m.win = newWindow(seq, PhaseBlockChallengeWindow, []string{m.claim.ActorID})
	m.phase = PhaseBlockChallengeWindow
	m.emit(events.EventTypeBlockChallengeWindowOpened, m.claim.BlockerID, m.claim.ActorID, WindowPayload{
		Seq:        seq,
		Phase:      m.phase,
		ClaimantID: m.claim.BlockerID,
		Role:       m.claim.BlockedRole,
		Eligible:   []string{m.claim.ActorID},
		TimeoutMS:  m.timeoutMS(m.phase),
	})
}

func (m *Machine) closeWindow(reason string) {
	if m.win == nil {
		return
	}
	var t events.EventType
	switch m.win.phase {
	case PhaseChallengeWindow:
		t = events.EventTypeChallengeWindowClosed
	case PhaseBlockWindow:
		t = events.EventTypeBlockWindowClosed
	case PhaseBlockChallengeWindow:
		t = events.EventTypeBlockChallengeWindowClosed
	}
	m.emit(t, "", "", WindowPayload{Seq: m.win.seq, Phase: m.win.phase, Reason: reason})
	m.win = nil
	m.phase = PhaseResolving
}

// noResponse closes the open window after a timeout or when every eligible
// seat passed.
func (m *Machine) noResponse(reason string) error {
	phase := m.phase
	m.closeWindow(reason)
	switch phase {
	case PhaseChallengeWindow:
		return m.proceed(thenAfterChallenge)
	case PhaseBlockWindow:
		return m.resolve()
	case PhaseBlockChallengeWindow:
		claim := *m.claim
		m.emit(events.EventTypeActionBlocked, claim.BlockerID, claim.ActorID, ClaimPayload{Claim: claim, Reason: reason})
		return m.endTurn()
	}
	return nil
}

// Influence loss.

// loseInfluence makes seat give up one card. A seat holding two or more
// cards chooses which; a single card is lost immediately.
func (m *Machine) loseInfluence(seat, reason string, next then) error {
	p := m.players[seat]
	if p.Eliminated {
		return m.proceed(next)
	}
	loss := influenceLoss{seat: seat, reason: reason, next: next}
	if p.Influence() == 1 {
		return m.applyLoss(loss, 0)
	}

	seq := m.nextSeq()
	m.loss = &loss
	m.phase = PhaseAwaitingInfluenceLoss
	m.emit(events.EventTypeInfluenceChoiceRequested, seat, "", InfluencePayload{
		SeatID:    seat,
		Remaining: p.Influence(),
		Reason:    reason,
		Seq:       seq,
		TimeoutMS: m.timeoutMS(m.phase),
	})
	return nil
}

func (m *Machine) applyLoss(loss influenceLoss, index int) error {
	p := m.players[loss.seat]
	card, err := p.LoseInfluence(index)
	if err != nil {
		return m.abort(err)
	}
	m.phase = PhaseResolving
	m.emit(events.EventTypeInfluenceLost, loss.seat, "", InfluencePayload{
		SeatID:    loss.seat,
		Role:      card.Role,
		Remaining: p.Influence(),
		Reason:    loss.reason,
	})
	m.emit(events.EventTypeCardRevealed, loss.seat, "", CardPayload{SeatID: loss.seat, Role: card.Role, Reason: loss.reason})

	if p.Eliminated {
		m.logger.Info("seat eliminated", zap.String("seat", loss.seat), zap.Int("turn", m.turn))
		m.emit(events.EventTypePlayerEliminated, loss.seat, "", CardPayload{SeatID: loss.seat})
	}
	if m.checkWinner() {
		return nil
	}
	return m.proceed(loss.next)
}

func (m *Machine) proceed(next then) error {
	switch next {
	case thenAfterChallenge:
		action, err := m.cat.Action(m.claim.Action)
		if err != nil {
			return m.abort(err)
		}
		if action.Blockable() {
			return m.openBlockWindow()
		}
		return m.resolve()
	case thenResolve:
		return m.resolve()
	}
	return m.endTurn()
}

// Resolution.

func (m *Machine) resolve() error {
	m.phase = PhaseResolving
	claim := *m.claim
	action, err := m.cat.Action(claim.Action)
	if err != nil {
		return m.abort(err)
	}
	actor := m.players[claim.ActorID]
	target := m.players[claim.TargetID]

	if actor.Eliminated || (action.Targeted && (target == nil || target.Eliminated)) {
		m.emit(events.EventTypeActionVoided, claim.ActorID, claim.TargetID, ClaimPayload{Claim: claim, Reason: "participant eliminated"})
		return m.endTurn()
	}

	targetCoins := 0
	if target != nil {
		targetCoins = target.Coins
	}
	delta := action.Effect(targetCoins)
	if delta.TargetCoins < 0 {
		if err := target.Debit(-delta.TargetCoins); err != nil {
			return m.abort(err)
		}
	}
	actor.Credit(delta.ActorCoins)

	if delta.ActorDraws > 0 {
		return m.offerExchange(delta.ActorDraws)
	}

	m.emit(events.EventTypeActionResolved, claim.ActorID, claim.TargetID, ActionResolvedPayload{
		Action:      action.ID,
		ActorCoins:  delta.ActorCoins,
		TargetCoins: delta.TargetCoins,
		Summary:     summarize(action, claim, delta),
	})
	if delta.TargetLosesInfluence {
		reason := LossCoup
		if action.ID == catalog.ActionAssassinate {
			reason = LossAssassinated
		}
		return m.loseInfluence(claim.TargetID, reason, thenEndTurn)
	}
	return m.endTurn()
}

func (m *Machine) offerExchange(n int) error {
	drawn, err := m.deck.Draw(n)
	if err != nil {
		return m.abort(err)
	}
	actor := m.players[m.claim.ActorID]
	first := actor.Influence()
	actor.AddCards(drawn...)
	offer := &exchangeOffer{}
	for i := range drawn {
		offer.drawn = append(offer.drawn, first+i)
	}

	seq := m.nextSeq()
	m.exchange = offer
	m.phase = PhaseAwaitingExchange
	m.emit(events.EventTypeExchangeOffered, actor.ID, "", InfluencePayload{
		SeatID:    actor.ID,
		Remaining: actor.Influence(),
		Seq:       seq,
		TimeoutMS: m.timeoutMS(m.phase),
	})
	m.emitTo(actor.ID, events.EventTypeExchangeOffered, actor.ID, "", ExchangeOfferedPayload{
		Hand:      append(actor.Hand[:0:0], actor.Hand...),
		Drawn:     append([]int(nil), offer.drawn...),
		Return:    len(drawn),
		Seq:       seq,
		TimeoutMS: m.timeoutMS(m.phase),
	})
	return nil
}

func (m *Machine) completeExchange(indices []int) error {
	actor := m.players[m.claim.ActorID]
	returned, err := actor.RemoveCards(indices)
	if err != nil {
		return err
	}
	m.exchange = nil
	m.deck.ReturnAndShuffle(returned...)
	m.phase = PhaseResolving
	m.emit(events.EventTypeActionResolved, actor.ID, "", ActionResolvedPayload{
		Action:  catalog.ActionExchange,
		Summary: fmt.Sprintf("%s exchanged %d cards with the court deck", actor.ID, len(returned)),
	})
	m.emitTo(actor.ID, events.EventTypeStateSnapshot, "", "", m.View(actor.ID))
	return m.endTurn()
}

func summarize(a catalog.Action, c PendingClaim, d catalog.Delta) string {
	switch {
	case d.TargetCoins < 0:
		return fmt.Sprintf("%s took %d coins from %s", c.ActorID, d.ActorCoins, c.TargetID)
	case d.TargetLosesInfluence:
		return fmt.Sprintf("%s used %s on %s", c.ActorID, a.Name, c.TargetID)
	case d.ActorCoins > 0:
		return fmt.Sprintf("%s took %d coins with %s", c.ActorID, d.ActorCoins, a.Name)
	}
	return fmt.Sprintf("%s used %s", c.ActorID, a.Name)
}

// Turn order.

func (m *Machine) endTurn() error {
	m.claim, m.win, m.loss, m.exchange = nil, nil, nil, nil
	if m.checkWinner() {
		return nil
	}
	for i := 1; i <= len(m.seats); i++ {
		next := (m.current + i) % len(m.seats)
		if !m.players[m.seats[next]].Eliminated {
			m.current = next
			break
		}
	}
	m.turn++
	m.phase = PhaseAwaitingAction
	m.emit(events.EventTypeTurnAdvanced, m.Current(), "", TurnPayload{SeatID: m.Current(), Turn: m.turn})
	return nil
}

// checkWinner ends the game once a single seat has influence left.
func (m *Machine) checkWinner() bool {
	if m.phase == PhaseGameOver {
		return true
	}
	alive := m.living()
	if len(alive) != 1 {
		return false
	}
	m.winner = alive[0]
	m.phase = PhaseGameOver
	m.claim, m.win, m.loss, m.exchange = nil, nil, nil, nil
	m.logger.Info("game over", zap.String("winner", m.winner), zap.Int("turns", m.turn))
	m.emit(events.EventTypeGameOver, m.winner, "", GameOverPayload{WinnerID: m.winner, Turns: m.turn})
	return true
}
