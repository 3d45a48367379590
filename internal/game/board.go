package game

import (
	"encoding/json"
	"fmt"
	"sort"
)

// BoardCard is a placed card instance. Stats are snapshotted from the catalog at placement.
type BoardCard struct {
	ID               string   `json:"id"`
	GameID           string   `json:"gameId"`
	CardID           string   `json:"cardId"`
	OwnerID          string   `json:"ownerId"`
	Name             string   `json:"name"`
	Attack           int      `json:"attack"`
	Defense          int      `json:"defense"`
	Ability          *Ability `json:"ability,omitempty"`
	Row              int      `json:"row"`
	Position         int      `json:"position"`
	Mode             Mode     `json:"mode"`
	HasActedThisTurn bool     `json:"hasActedThisTurn"`
}

// DefendingValue is defense in DEFENSE mode and attack otherwise.
func (c *BoardCard) DefendingValue() int {
	if c.Mode == ModeDefense {
		return c.Defense
	}
	return c.Attack
}

type slot struct {
	row, pos int
}

// Board is the sparse two-row grid of a session. It enforces one card per slot
// and nothing else.
type Board struct {
	positions int
	slots     map[slot]*BoardCard
	byID      map[string]slot
}

// NewBoard creates an empty board with the given number of positions per row.
func NewBoard(positions int) *Board {
	return &Board{
		positions: positions,
		slots:     make(map[slot]*BoardCard),
		byID:      make(map[string]slot),
	}
}

// Positions returns the number of positions per row.
func (b *Board) Positions() int { return b.positions }

// ValidPosition reports whether pos is on the board.
func (b *Board) ValidPosition(pos int) bool {
	return pos >= 0 && pos < b.positions
}

// At returns the card at (row, pos).
func (b *Board) At(row, pos int) (*BoardCard, bool) {
	c, ok := b.slots[slot{row, pos}]
	return c, ok
}

// Get returns the card with the given board id.
func (b *Board) Get(id string) (*BoardCard, bool) {
	s, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return b.slots[s], true
}

// Place inserts card at its (Row, Position) if that slot is empty.
func (b *Board) Place(card *BoardCard) error {
	if card.Row < 0 || card.Row > 1 || !b.ValidPosition(card.Position) {
		return fmt.Errorf("row %d position %d: %w", card.Row, card.Position, ErrInvalidPosition)
	}
	s := slot{card.Row, card.Position}
	if _, taken := b.slots[s]; taken {
		return fmt.Errorf("row %d position %d: %w", card.Row, card.Position, ErrPositionOccupied)
	}
	b.slots[s] = card
	b.byID[card.ID] = s
	return nil
}

// Remove deletes the card with the given id and returns it.
func (b *Board) Remove(id string) (*BoardCard, bool) {
	s, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	c := b.slots[s]
	delete(b.slots, s)
	delete(b.byID, id)
	return c, true
}

// Row returns the cards in row ordered by position.
func (b *Board) Row(row int) []*BoardCard {
	out := make([]*BoardCard, 0, b.positions)
	for pos := 0; pos < b.positions; pos++ {
		if c, ok := b.slots[slot{row, pos}]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of cards in row.
func (b *Board) Count(row int) int {
	n := 0
	for s := range b.slots {
		if s.row == row {
			n++
		}
	}
	return n
}

// Cards returns every card ordered by row then position.
func (b *Board) Cards() []*BoardCard {
	out := make([]*BoardCard, 0, len(b.slots))
	for _, c := range b.slots {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// OwnedBy returns the cards of ownerID ordered by row then position.
func (b *Board) OwnedBy(ownerID string) []*BoardCard {
	var out []*BoardCard
	for _, c := range b.Cards() {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	cp := NewBoard(b.positions)
	for s, c := range b.slots {
		card := *c
		cp.slots[s] = &card
		cp.byID[card.ID] = s
	}
	return cp
}

type boardJSON struct {
	Positions int          `json:"positions"`
	Cards     []*BoardCard `json:"cards"`
}

// MarshalJSON encodes the board as a position count and an ordered card list.
func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(boardJSON{Positions: b.positions, Cards: b.Cards()})
}

// UnmarshalJSON rebuilds the slot index from an encoded card list.
func (b *Board) UnmarshalJSON(data []byte) error {
	var raw boardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = *NewBoard(raw.Positions)
	for _, c := range raw.Cards {
		if err := b.Place(c); err != nil {
			return fmt.Errorf("decode board card %s: %w", c.ID, err)
		}
	}
	return nil
}
