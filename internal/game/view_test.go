package game

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindAndCode(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
		code string
	}{
		{ErrInvalidPosition, KindValidation, "INVALID_POSITION"},
		{fmt.Errorf("wrapped: %w", ErrNotYourTurn), KindConflict, "NOT_YOUR_TURN"},
		{fmt.Errorf("session g1: %w", ErrGameNotFound), KindNotFound, "GAME_NOT_FOUND"},
		{ErrNotAParticipant, KindForbidden, "NOT_A_PARTICIPANT"},
		{errors.New("connection reset"), KindInternal, "INTERNAL"},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.kind)
		}
		if got := CodeOf(tc.err); got != tc.code {
			t.Fatalf("CodeOf(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}

func TestNewView(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	s := &Session{
		ID:                  "g1",
		Player1:             &PlayerState{ID: "p1", Health: 4000, Deck: []string{"a", "b"}, Hand: []string{"c"}},
		Status:              StatusWaiting,
		CurrentTurnPlayerID: "p1",
		TurnNumber:          1,
		Board:               NewBoard(8),
		Version:             3,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	v := NewView(s)
	if v.Player2 != nil {
		t.Fatalf("expected no player2 while waiting")
	}
	if v.Player1.DeckCount != 2 || v.Player1.HandCount != 1 {
		t.Fatalf("unexpected counts: %+v", v.Player1)
	}
	if v.BoardPositions != 8 || len(v.Board) != 0 {
		t.Fatalf("unexpected board: %d positions, %d cards", v.BoardPositions, len(v.Board))
	}

	s.Player1.Hand[0] = "mutated"
	if v.Player1.Hand[0] != "c" {
		t.Fatalf("view shares the hand slice with the session")
	}

	s.Player2 = &PlayerState{ID: "p2", Health: 0}
	s.Status = StatusFinished
	s.WinnerID = "p1"
	v = NewView(s)
	if v.CurrentTurnPlayerID != "" {
		t.Fatalf("finished view should not name a current player, got %q", v.CurrentTurnPlayerID)
	}
	if v.Player2 == nil || v.Player2.ID != "p2" || v.WinnerID != "p1" {
		t.Fatalf("unexpected finished view: %+v", v)
	}

	if got := NewViews([]*Session{s, s}); len(got) != 2 {
		t.Fatalf("expected 2 views, got %d", len(got))
	}
}
