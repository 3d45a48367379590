package game

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

// Mode is the stance of a placed card. It decides which stat defends.
type Mode string

const (
	ModeAttack  Mode = "ATTACK"
	ModeDefense Mode = "DEFENSE"
)

// ParseMode validates a mode string. An empty string yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(s) {
	case "":
		return def, nil
	case ModeAttack, ModeDefense:
		return Mode(s), nil
	}
	return "", fmt.Errorf("mode %q: %w", s, ErrInvalidMode)
}

// ActionType is a board card action.
type ActionType string

const (
	ActionSwitchMode ActionType = "SWITCH_MODE"
	ActionAttack     ActionType = "ATTACK"
)

// ParseAction validates an action string.
func ParseAction(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionSwitchMode, ActionAttack:
		return ActionType(s), nil
	}
	return "", fmt.Errorf("action %q: %w", s, ErrInvalidAction)
}

// Rules holds the numeric constants of a battle.
type Rules struct {
	StartingHealth     int
	MaxHealth          int
	BoardPositions     int
	InitialHandSize    int
	MaxCopiesPerCard   int
	DefaultAbilityUses int
}

// DefaultRules returns the standard battle constants.
func DefaultRules() Rules {
	return Rules{
		StartingHealth:     5000,
		MaxHealth:          5000,
		BoardPositions:     8,
		InitialHandSize:    5,
		MaxCopiesPerCard:   3,
		DefaultAbilityUses: 1,
	}
}

// CardDefinition is a read-only catalog entry.
type CardDefinition struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Attack  int      `json:"attack"`
	Defense int      `json:"defense"`
	Ability *Ability `json:"ability,omitempty"`
}

// PlayerState is one side of a session.
type PlayerState struct {
	ID     string   `json:"id"`
	Health int      `json:"health"`
	Deck   []string `json:"deck"` // front is the top
	Hand   []string `json:"hand"`
}

func (p *PlayerState) clone() *PlayerState {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Deck = append([]string(nil), p.Deck...)
	cp.Hand = append([]string(nil), p.Hand...)
	return &cp
}

// removeFromHand removes one occurrence of cardID and reports whether it was present.
func (p *PlayerState) removeFromHand(cardID string) bool {
	for i, id := range p.Hand {
		if id == cardID {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return true
		}
	}
	return false
}

func (p *PlayerState) hasInHand(cardID string) bool {
	for _, id := range p.Hand {
		if id == cardID {
			return true
		}
	}
	return false
}

// Session is one battle between two players.
// Player2 is nil exactly while the session is WAITING.
type Session struct {
	ID                  string         `json:"id"`
	Player1             *PlayerState   `json:"player1"`
	Player2             *PlayerState   `json:"player2,omitempty"`
	Status              Status         `json:"status"`
	CurrentTurnPlayerID string         `json:"currentTurnPlayerId"`
	TurnNumber          int            `json:"turnNumber"`
	Board               *Board         `json:"board"`
	WinnerID            string         `json:"winnerId,omitempty"`
	AbilityUses         map[string]int `json:"abilityUses,omitempty"`
	Version             int64          `json:"version"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy. Resolution always runs on a clone.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Player1 = s.Player1.clone()
	cp.Player2 = s.Player2.clone()
	if s.Board != nil {
		cp.Board = s.Board.Clone()
	}
	if s.AbilityUses != nil {
		cp.AbilityUses = make(map[string]int, len(s.AbilityUses))
		for k, v := range s.AbilityUses {
			cp.AbilityUses[k] = v
		}
	}
	return &cp
}

// Player returns the state of playerID, or nil when they do not participate.
func (s *Session) Player(playerID string) *PlayerState {
	switch {
	case s.Player1 != nil && s.Player1.ID == playerID:
		return s.Player1
	case s.Player2 != nil && s.Player2.ID == playerID:
		return s.Player2
	}
	return nil
}

// Opponent returns the other participant of playerID, or nil.
func (s *Session) Opponent(playerID string) *PlayerState {
	switch {
	case s.Player1 != nil && s.Player1.ID == playerID:
		return s.Player2
	case s.Player2 != nil && s.Player2.ID == playerID:
		return s.Player1
	}
	return nil
}

// IsParticipant reports whether playerID is one of the two players.
func (s *Session) IsParticipant(playerID string) bool {
	return s.Player(playerID) != nil
}

// RowOf returns the board row owned by playerID: 0 for player1, 1 for player2.
func (s *Session) RowOf(playerID string) int {
	if s.Player1 != nil && s.Player1.ID == playerID {
		return 0
	}
	return 1
}

// GameRecord is the per-user aggregate of finished games.
type GameRecord struct {
	UserID     string `json:"userId"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	TotalGames int    `json:"totalGames"`
}

// Outcome is a user's result in one finished game.
type Outcome int

const (
	OutcomeLoss Outcome = iota
	OutcomeWin
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeDraw:
		return "draw"
	default:
		return "loss"
	}
}

// RecordUpdate is applied to a user's GameRecord in the same commit as the session.
type RecordUpdate struct {
	UserID  string
	Outcome Outcome
}

// Apply adds the outcome to r.
func (u RecordUpdate) Apply(r *GameRecord) {
	r.UserID = u.UserID
	r.TotalGames++
	switch u.Outcome {
	case OutcomeWin:
		r.Wins++
	case OutcomeLoss:
		r.Losses++
	case OutcomeDraw:
		r.Draws++
	}
}
