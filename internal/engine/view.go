package engine

import (
	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
)

// SeatView is one seat as seen by a viewer. Hand is only filled for the
// viewer's own seat.
type SeatView struct {
	ID         string      `json:"id"`
	Coins      int         `json:"coins"`
	Influence  int         `json:"influence"`
	Hand       []deck.Card `json:"hand,omitempty"`
	Revealed   []deck.Card `json:"revealed"`
	Eliminated bool        `json:"eliminated"`
}

// View is the table state visible to one seat.
type View struct {
	Viewer   string             `json:"viewer,omitempty"`
	Phase    Phase              `json:"phase"`
	Turn     int                `json:"turn"`
	Current  string             `json:"current"`
	Claim    *PendingClaim      `json:"claim,omitempty"`
	Seats    []SeatView         `json:"seats"`
	DeckSize int                `json:"deck_size"`
	Awaiting []string           `json:"awaiting,omitempty"`
	Legal    []catalog.ActionID `json:"legal_actions,omitempty"`
	Winner   string             `json:"winner,omitempty"`
}

// View returns the state visible to seat. An empty or unknown seat gets the
// public view with every hand hidden.
func (m *Machine) View(seat string) View {
	v := View{
		Viewer:   seat,
		Phase:    m.phase,
		Turn:     m.turn,
		Current:  m.Current(),
		DeckSize: m.deck.Len(),
		Awaiting: m.Awaiting(),
		Legal:    m.LegalActions(seat),
		Winner:   m.winner,
	}
	if c, ok := m.Claim(); ok {
		v.Claim = &c
	}
	for _, id := range m.seats {
		p := m.players[id]
		sv := SeatView{
			ID:         id,
			Coins:      p.Coins,
			Influence:  p.Influence(),
			Revealed:   append([]deck.Card{}, p.Revealed...),
			Eliminated: p.Eliminated,
		}
		if id == seat {
			sv.Hand = append([]deck.Card{}, p.Hand...)
		}
		v.Seats = append(v.Seats, sv)
	}
	return v
}
