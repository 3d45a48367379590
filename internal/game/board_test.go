package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardPlaceAndLookup(t *testing.T) {
	b := NewBoard(8)
	c := &BoardCard{ID: "c1", OwnerID: "p1", Row: 0, Position: 3}
	require.NoError(t, b.Place(c))

	got, ok := b.At(0, 3)
	require.True(t, ok)
	assert.Same(t, c, got)

	got, ok = b.Get("c1")
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = b.At(1, 3)
	assert.False(t, ok, "rows are independent")
}

func TestBoardPlaceOccupied(t *testing.T) {
	b := NewBoard(8)
	require.NoError(t, b.Place(&BoardCard{ID: "c1", Row: 1, Position: 0}))

	err := b.Place(&BoardCard{ID: "c2", Row: 1, Position: 0})
	assert.ErrorIs(t, err, ErrPositionOccupied)

	_, ok := b.Get("c2")
	assert.False(t, ok)
	assert.Equal(t, 1, b.Count(1))
}

func TestBoardPlaceOutOfRange(t *testing.T) {
	b := NewBoard(8)
	assert.ErrorIs(t, b.Place(&BoardCard{ID: "c", Row: 0, Position: 8}), ErrInvalidPosition)
	assert.ErrorIs(t, b.Place(&BoardCard{ID: "c", Row: 0, Position: -1}), ErrInvalidPosition)
	assert.ErrorIs(t, b.Place(&BoardCard{ID: "c", Row: 2, Position: 0}), ErrInvalidPosition)
}

func TestBoardRemoveAndRowOrder(t *testing.T) {
	b := NewBoard(8)
	for _, c := range []*BoardCard{
		{ID: "c5", Row: 0, Position: 5},
		{ID: "c1", Row: 0, Position: 1},
		{ID: "e0", Row: 1, Position: 0},
		{ID: "c7", Row: 0, Position: 7},
	} {
		require.NoError(t, b.Place(c))
	}

	ids := func(cards []*BoardCard) []string {
		out := make([]string, 0, len(cards))
		for _, c := range cards {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{"c1", "c5", "c7"}, ids(b.Row(0)))
	assert.Equal(t, 3, b.Count(0))

	removed, ok := b.Remove("c5")
	require.True(t, ok)
	assert.Equal(t, "c5", removed.ID)
	_, ok = b.Remove("c5")
	assert.False(t, ok)

	assert.Equal(t, []string{"c1", "c7", "e0"}, ids(b.Cards()))

	// freed slot is reusable
	require.NoError(t, b.Place(&BoardCard{ID: "n5", Row: 0, Position: 5}))
}

func TestBoardCloneIsIndependent(t *testing.T) {
	b := NewBoard(4)
	require.NoError(t, b.Place(&BoardCard{ID: "c1", Row: 0, Position: 0, Mode: ModeAttack}))

	cp := b.Clone()
	c, _ := cp.Get("c1")
	c.Mode = ModeDefense
	cp.Remove("c1")

	orig, ok := b.Get("c1")
	require.True(t, ok)
	assert.Equal(t, ModeAttack, orig.Mode)
}

func TestBoardJSON(t *testing.T) {
	b := NewBoard(8)
	require.NoError(t, b.Place(&BoardCard{ID: "c2", OwnerID: "p2", Row: 1, Position: 2, Mode: ModeDefense}))
	require.NoError(t, b.Place(&BoardCard{ID: "c1", OwnerID: "p1", Row: 0, Position: 6, Mode: ModeAttack}))

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded Board
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 8, decoded.Positions())
	c, ok := decoded.At(1, 2)
	require.True(t, ok)
	assert.Equal(t, "c2", c.ID)
	assert.Equal(t, ModeDefense, c.Mode)

	bad := []byte(`{"positions":8,"cards":[{"id":"a","row":0,"position":1},{"id":"b","row":0,"position":1}]}`)
	assert.ErrorIs(t, json.Unmarshal(bad, &decoded), ErrPositionOccupied)
}

func TestDefendingValue(t *testing.T) {
	c := &BoardCard{Attack: 700, Defense: 300, Mode: ModeAttack}
	assert.Equal(t, 700, c.DefendingValue())
	c.Mode = ModeDefense
	assert.Equal(t, 300, c.DefendingValue())
}
