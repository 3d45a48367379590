package game

import (
	"github.com/cardclash/battle-server-go/internal/game/rules"
)

// endTurn is an explicit end of turn by the current player.
func (r *resolution) endTurn(playerID string) error {
	if err := r.requireTurn(playerID); err != nil {
		return err
	}
	r.advanceTurn()
	return nil
}

// advanceTurn hands the turn to the other player. Only the incoming player's cards are
// readied, and the incoming player draws one card. Every place and every action ends
// the turn through here, so a turn is always exactly one move.
func (r *resolution) advanceTurn() {
	outgoing := r.s.CurrentTurnPlayerID
	r.triggerAll(outgoing, TriggerOnTurnEnd)
	r.checkWin()
	if r.finished() {
		return
	}

	next := r.s.Opponent(outgoing)
	r.emit(rules.NewEventWithAmount(rules.EventTurnEnded, outgoing, "", outgoing, r.s.TurnNumber))

	r.s.CurrentTurnPlayerID = next.ID
	r.s.TurnNumber++
	for _, c := range r.s.Board.OwnedBy(next.ID) {
		c.HasActedThisTurn = false
	}
	r.emit(rules.NewEventWithAmount(rules.EventTurnStarted, next.ID, "", next.ID, r.s.TurnNumber))
	r.draw(next.ID, 1)

	r.triggerAll(next.ID, TriggerOnTurnStart)
	r.checkWin()
}

func (r *resolution) draw(playerID string, n int) {
	if drawn := DrawCards(r.s, playerID, n); len(drawn) > 0 {
		r.emit(rules.NewEventWithAmount(rules.EventCardDrawn, playerID, "", playerID, len(drawn)))
	}
}
