package game

import (
	"fmt"
	"time"

	"github.com/cardclash/battle-server-go/internal/game/rules"
)

// resolution applies one action to a private copy of a session and collects what happened.
type resolution struct {
	s       *Session
	cfg     Rules
	now     time.Time
	events  []rules.Event
	records []RecordUpdate
}

func newResolution(s *Session, cfg Rules, now time.Time) *resolution {
	return &resolution{s: s, cfg: cfg, now: now}
}

func (r *resolution) emit(evt rules.Event) {
	evt.Timestamp = r.now
	r.events = append(r.events, evt)
}

func (r *resolution) finished() bool {
	return r.s.Status == StatusFinished
}

// requireTurn checks status then turn ownership.
func (r *resolution) requireTurn(playerID string) error {
	if r.s.Status != StatusInProgress {
		return ErrGameNotInProgress
	}
	if r.s.CurrentTurnPlayerID != playerID {
		return ErrNotYourTurn
	}
	return nil
}

// checkPlacement verifies a placement up to the board insert, in error order.
func (r *resolution) checkPlacement(playerID, cardID string, position int) error {
	if err := r.requireTurn(playerID); err != nil {
		return err
	}
	if !r.s.Player(playerID).hasInHand(cardID) {
		return fmt.Errorf("card %s: %w", cardID, ErrCardNotInHand)
	}
	if _, taken := r.s.Board.At(r.s.RowOf(playerID), position); taken {
		return fmt.Errorf("position %d: %w", position, ErrPositionOccupied)
	}
	return nil
}

// place moves cardID from the player's hand onto their row. The new card cannot act
// this turn. Placing ends the turn unless the game finished.
func (r *resolution) place(playerID, boardCardID string, def *CardDefinition, position int, mode Mode) error {
	if err := r.checkPlacement(playerID, def.ID, position); err != nil {
		return err
	}
	p := r.s.Player(playerID)

	card := &BoardCard{
		ID:               boardCardID,
		GameID:           r.s.ID,
		CardID:           def.ID,
		OwnerID:          playerID,
		Name:             def.Name,
		Attack:           def.Attack,
		Defense:          def.Defense,
		Ability:          def.Ability,
		Row:              r.s.RowOf(playerID),
		Position:         position,
		Mode:             mode,
		HasActedThisTurn: true,
	}
	if err := r.s.Board.Place(card); err != nil {
		return err
	}
	p.removeFromHand(def.ID)

	r.emit(rules.NewEvent(rules.EventCardPlaced, card.ID, def.ID, playerID).
		WithMetadata("position", fmt.Sprint(position)).
		WithMetadata("mode", string(mode)))

	r.trigger(card, TriggerOnPlay)
	r.checkWin()
	if !r.finished() {
		r.advanceTurn()
	}
	return nil
}

// act performs a mode switch or an attack with one of the player's board cards.
// A single action ends the turn unless the game finished.
func (r *resolution) act(playerID, boardCardID string, action ActionType, newMode Mode, targetID string) error {
	if err := r.requireTurn(playerID); err != nil {
		return err
	}
	card, ok := r.s.Board.Get(boardCardID)
	if !ok {
		return fmt.Errorf("board card %s: %w", boardCardID, ErrCardNotFound)
	}
	if card.OwnerID != playerID {
		return fmt.Errorf("board card %s: %w", boardCardID, ErrNotYourCard)
	}
	if card.HasActedThisTurn {
		return fmt.Errorf("board card %s: %w", boardCardID, ErrAlreadyActed)
	}

	switch action {
	case ActionSwitchMode:
		card.Mode = newMode
		card.HasActedThisTurn = true
		r.emit(rules.NewEvent(rules.EventModeSwitched, card.ID, card.CardID, playerID).
			WithMetadata("mode", string(newMode)))
	case ActionAttack:
		var err error
		if targetID != "" {
			err = r.attackCard(card, targetID)
		} else {
			err = r.attackPlayer(card)
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("action %q: %w", action, ErrInvalidAction)
	}

	r.checkWin()
	if !r.finished() {
		r.advanceTurn()
	}
	return nil
}

func (r *resolution) attackCard(attacker *BoardCard, targetID string) error {
	target, ok := r.s.Board.Get(targetID)
	if !ok {
		return fmt.Errorf("target %s: %w", targetID, ErrTargetNotFound)
	}
	if target.OwnerID == attacker.OwnerID {
		return fmt.Errorf("target %s: %w", targetID, ErrCannotAttackOwnCard)
	}

	atk, def := attacker.Attack, target.DefendingValue()
	r.emit(rules.NewEventWithAmount(rules.EventCardAttacked, target.ID, attacker.ID, attacker.OwnerID, atk).
		WithMetadata("defending", fmt.Sprint(def)).
		WithMetadata("targetMode", string(target.Mode)))

	switch {
	case atk > def:
		attacker.HasActedThisTurn = true
		targetWasAttacking := target.Mode == ModeAttack
		r.destroy(target, attacker.ID)
		if targetWasAttacking {
			if opp := r.s.Player(target.OwnerID); opp != nil {
				r.damagePlayer(opp, atk-def, attacker.ID)
			}
		}
		r.landed(attacker)
	case atk == def:
		r.destroy(attacker, target.ID)
		r.destroy(target, attacker.ID)
	default:
		r.destroy(attacker, target.ID)
	}
	return nil
}

func (r *resolution) attackPlayer(attacker *BoardCard) error {
	opp := r.s.Opponent(attacker.OwnerID)
	if opp == nil {
		return ErrGameNotInProgress
	}
	if n := r.s.Board.Count(r.s.RowOf(opp.ID)); n > 0 {
		return fmt.Errorf("%d defending cards: %w", n, ErrBlockedByCards)
	}
	attacker.HasActedThisTurn = true
	r.emit(rules.NewEventWithAmount(rules.EventPlayerAttacked, opp.ID, attacker.ID, attacker.OwnerID, attacker.Attack))
	r.damagePlayer(opp, attacker.Attack, attacker.ID)
	r.landed(attacker)
	return nil
}

// landed fires the attacker's on-attack abilities if it is still on the board.
func (r *resolution) landed(attacker *BoardCard) {
	if _, ok := r.s.Board.Get(attacker.ID); ok {
		r.trigger(attacker, TriggerOnAttack)
	}
}

// destroy removes card from the board and fires its on-destroy ability.
func (r *resolution) destroy(card *BoardCard, sourceID string) {
	if _, ok := r.s.Board.Remove(card.ID); !ok {
		return
	}
	r.emit(rules.NewEvent(rules.EventCardDestroyed, card.ID, sourceID, card.OwnerID).
		WithMetadata("cardId", card.CardID))
	r.trigger(card, TriggerOnDestroy)
}

func (r *resolution) damagePlayer(p *PlayerState, amount int, sourceID string) {
	if amount <= 0 {
		return
	}
	p.Health -= amount
	r.emit(rules.NewEventWithAmount(rules.EventPlayerDamaged, p.ID, sourceID, p.ID, amount))
}

// checkWin finishes the game once either player is at or below zero health.
// When both are, the higher raw health wins and an exact tie is a draw.
func (r *resolution) checkWin() {
	if r.finished() || r.s.Player2 == nil {
		return
	}
	p1, p2 := r.s.Player1, r.s.Player2
	switch {
	case p1.Health > 0 && p2.Health > 0:
		return
	case p1.Health > 0:
		r.finish(p1.ID)
	case p2.Health > 0:
		r.finish(p2.ID)
	case p1.Health > p2.Health:
		r.finish(p1.ID)
	case p2.Health > p1.Health:
		r.finish(p2.ID)
	default:
		r.finish("")
	}
}

// finish marks the session FINISHED, clamps health at zero and queues record updates.
// An empty winnerID is a draw.
func (r *resolution) finish(winnerID string) {
	r.s.Status = StatusFinished
	r.s.WinnerID = winnerID
	for _, p := range []*PlayerState{r.s.Player1, r.s.Player2} {
		if p.Health < 0 {
			p.Health = 0
		}
		outcome := OutcomeLoss
		switch {
		case winnerID == "":
			outcome = OutcomeDraw
		case p.ID == winnerID:
			outcome = OutcomeWin
		}
		r.records = append(r.records, RecordUpdate{UserID: p.ID, Outcome: outcome})
	}
	evt := rules.NewEvent(rules.EventGameFinished, winnerID, "", winnerID)
	if winnerID == "" {
		evt = evt.WithMetadata("result", "draw")
	}
	r.emit(evt)
}

// forfeit ends the session on behalf of playerID. A WAITING session is cancelled
// with no winner and no records.
func (r *resolution) forfeit(playerID string) error {
	if r.finished() {
		return ErrAlreadyFinished
	}
	if !r.s.IsParticipant(playerID) {
		return ErrNotAParticipant
	}
	if r.s.Status == StatusWaiting {
		r.s.Status = StatusFinished
		r.emit(rules.NewEvent(rules.EventGameCancelled, "", "", playerID))
		return nil
	}
	r.emit(rules.NewEvent(rules.EventGameForfeited, playerID, "", playerID))
	r.finish(r.s.Opponent(playerID).ID)
	return nil
}
