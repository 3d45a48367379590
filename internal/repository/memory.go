package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cardclash/battle-server-go/internal/game"
)

type memorySession struct {
	mu sync.Mutex // serializes updates of this session
	s  *game.Session
}

// MemoryStore is an in-process game.Store. Updates of one session are serialized;
// different sessions update in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	records  map[string]*game.GameRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		records:  make(map[string]*game.GameRecord),
	}
}

// CreateSession stores a copy of s.
func (m *MemoryStore) CreateSession(ctx context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = &memorySession{s: s.Clone()}
	return nil
}

// GetSession returns a copy of the session.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrGameNotFound)
	}
	return e.s.Clone(), nil
}

// ListSessions returns copies of matching sessions, most recently updated first.
func (m *MemoryStore) ListSessions(ctx context.Context, filter game.SessionFilter) ([]*game.Session, error) {
	m.mu.RLock()
	out := make([]*game.Session, 0)
	for _, e := range m.sessions {
		if filter.Matches(e.s) {
			out = append(out, e.s.Clone())
		}
	}
	m.mu.RUnlock()

	sortSessions(out)
	return out, nil
}

func sortSessions(sessions []*game.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// UpdateSession runs fn on a copy of the session and swaps it in, with its record
// updates, only when fn succeeds.
func (m *MemoryStore) UpdateSession(ctx context.Context, id string, fn game.UpdateFunc) (*game.Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrGameNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m.mu.RLock()
	working := e.s.Clone()
	m.mu.RUnlock()

	updates, err := fn(working)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	e.s = working
	for _, u := range updates {
		rec, ok := m.records[u.UserID]
		if !ok {
			rec = &game.GameRecord{UserID: u.UserID}
			m.records[u.UserID] = rec
		}
		u.Apply(rec)
	}
	m.mu.Unlock()

	return working.Clone(), nil
}

// GetRecord returns the user's record, zero-valued when none exists.
func (m *MemoryStore) GetRecord(ctx context.Context, userID string) (*game.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[userID]; ok {
		cp := *rec
		return &cp, nil
	}
	return &game.GameRecord{UserID: userID}, nil
}

// MemoryCatalog is a read-mostly card catalog.
type MemoryCatalog struct {
	mu    sync.RWMutex
	cards map[string]*game.CardDefinition
}

// NewMemoryCatalog creates a catalog holding cards.
func NewMemoryCatalog(cards ...*game.CardDefinition) *MemoryCatalog {
	c := &MemoryCatalog{cards: make(map[string]*game.CardDefinition, len(cards))}
	for _, card := range cards {
		c.cards[card.ID] = card
	}
	return c
}

// AddCard inserts or replaces a definition.
func (c *MemoryCatalog) AddCard(card *game.CardDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards[card.ID] = card
}

// GetCard implements game.CardCatalog.
func (c *MemoryCatalog) GetCard(ctx context.Context, id string) (*game.CardDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s not in catalog", id)
	}
	cp := *card
	return &cp, nil
}

// MemoryCollections maps users to owned cards. Users without an entry own the
// fallback collection, if one is set.
type MemoryCollections struct {
	mu       sync.RWMutex
	owned    map[string]map[string]int
	fallback map[string]int
}

// NewMemoryCollections creates a collection store. fallback may be nil.
func NewMemoryCollections(fallback map[string]int) *MemoryCollections {
	return &MemoryCollections{
		owned:    make(map[string]map[string]int),
		fallback: fallback,
	}
}

// SetCollection replaces the user's owned cards.
func (c *MemoryCollections) SetCollection(userID string, cards map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owned[userID] = copyCollection(cards)
}

// GetCollection implements game.CollectionStore.
func (c *MemoryCollections) GetCollection(ctx context.Context, userID string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if owned, ok := c.owned[userID]; ok {
		return copyCollection(owned), nil
	}
	return copyCollection(c.fallback), nil
}

func copyCollection(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
