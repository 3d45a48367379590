package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// combatHarness holds an in-progress session between p1 and p2 for resolver tests.
type combatHarness struct {
	t     *testing.T
	s     *Session
	rules Rules
	now   time.Time
	last  *resolution
}

func newCombatHarness(t *testing.T) *combatHarness {
	t.Helper()
	cfg := DefaultRules()
	return &combatHarness{
		t:     t,
		rules: cfg,
		now:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		s: &Session{
			ID:                  "game-1",
			Player1:             &PlayerState{ID: "p1", Health: cfg.StartingHealth, Hand: []string{}},
			Player2:             &PlayerState{ID: "p2", Health: cfg.StartingHealth, Hand: []string{}},
			Status:              StatusInProgress,
			CurrentTurnPlayerID: "p1",
			TurnNumber:          1,
			Board:               NewBoard(cfg.BoardPositions),
		},
	}
}

// cardSpec describes a card put directly on the board.
type cardSpec struct {
	ID       string
	Owner    string
	Position int
	Attack   int
	Defense  int
	Mode     Mode
	Acted    bool
	Ability  *Ability
}

func (h *combatHarness) put(spec cardSpec) *BoardCard {
	h.t.Helper()
	if spec.Mode == "" {
		spec.Mode = ModeAttack
	}
	c := &BoardCard{
		ID:               spec.ID,
		GameID:           h.s.ID,
		CardID:           "def-" + spec.ID,
		OwnerID:          spec.Owner,
		Name:             spec.ID,
		Attack:           spec.Attack,
		Defense:          spec.Defense,
		Ability:          spec.Ability,
		Row:              h.s.RowOf(spec.Owner),
		Position:         spec.Position,
		Mode:             spec.Mode,
		HasActedThisTurn: spec.Acted,
	}
	require.NoError(h.t, h.s.Board.Place(c))
	return c
}

func (h *combatHarness) resolution() *resolution {
	h.last = newResolution(h.s, h.rules, h.now)
	return h.last
}

func (h *combatHarness) attack(player, cardID, targetID string) error {
	return h.resolution().act(player, cardID, ActionAttack, "", targetID)
}

func (h *combatHarness) card(id string) *BoardCard {
	c, _ := h.s.Board.Get(id)
	return c
}

func (h *combatHarness) requireOnBoard(id string) *BoardCard {
	h.t.Helper()
	c, ok := h.s.Board.Get(id)
	require.Truef(h.t, ok, "expected %s on board", id)
	return c
}

func (h *combatHarness) requireGone(id string) {
	h.t.Helper()
	_, ok := h.s.Board.Get(id)
	require.Falsef(h.t, ok, "expected %s removed from board", id)
}
