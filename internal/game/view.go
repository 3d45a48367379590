package game

import "time"

// PlayerView is a player as shown to clients. Deck contents stay on the server.
type PlayerView struct {
	ID        string   `json:"id"`
	Health    int      `json:"health"`
	Hand      []string `json:"hand"`
	HandCount int      `json:"handCount"`
	DeckCount int      `json:"deckCount"`
}

// View is the client-facing shape of a session.
type View struct {
	ID                  string       `json:"id"`
	Player1             PlayerView   `json:"player1"`
	Player2             *PlayerView  `json:"player2,omitempty"`
	Status              Status       `json:"status"`
	CurrentTurnPlayerID string       `json:"currentTurnPlayerId,omitempty"`
	TurnNumber          int          `json:"turnNumber"`
	BoardPositions      int          `json:"boardPositions"`
	Board               []*BoardCard `json:"board"`
	WinnerID            string       `json:"winnerId,omitempty"`
	Version             int64        `json:"version"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

func playerView(p *PlayerState) PlayerView {
	return PlayerView{
		ID:        p.ID,
		Health:    p.Health,
		Hand:      append([]string{}, p.Hand...),
		HandCount: len(p.Hand),
		DeckCount: len(p.Deck),
	}
}

// NewView builds the client view of s.
func NewView(s *Session) *View {
	v := &View{
		ID:                  s.ID,
		Player1:             playerView(s.Player1),
		Status:              s.Status,
		CurrentTurnPlayerID: s.CurrentTurnPlayerID,
		TurnNumber:          s.TurnNumber,
		BoardPositions:      s.Board.Positions(),
		Board:               s.Board.Cards(),
		WinnerID:            s.WinnerID,
		Version:             s.Version,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
	if s.Player2 != nil {
		pv := playerView(s.Player2)
		v.Player2 = &pv
	}
	if s.Status == StatusFinished {
		v.CurrentTurnPlayerID = ""
	}
	return v
}

// NewViews maps NewView over sessions.
func NewViews(sessions []*Session) []*View {
	out := make([]*View, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, NewView(s))
	}
	return out
}
