package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cardclash/battle-server-go/internal/game/rules"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpdateFunc mutates a private copy of a session. Returning an error discards the copy.
// Returned record updates are committed together with the session.
type UpdateFunc func(s *Session) ([]RecordUpdate, error)

// SessionFilter selects sessions for listing. Zero fields do not filter.
type SessionFilter struct {
	Statuses      []Status
	ExcludeStatus Status
	Participant   string
	NotCreatedBy  string
}

// Matches reports whether s passes the filter.
func (f SessionFilter) Matches(s *Session) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ExcludeStatus != "" && s.Status == f.ExcludeStatus {
		return false
	}
	if f.Participant != "" && !s.IsParticipant(f.Participant) {
		return false
	}
	if f.NotCreatedBy != "" && s.Player1 != nil && s.Player1.ID == f.NotCreatedBy {
		return false
	}
	return true
}

// Store persists sessions and records. UpdateSession must serialize updates of one
// session and commit the session and its record updates atomically.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns matches ordered by UpdatedAt, newest first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)
	UpdateSession(ctx context.Context, id string, fn UpdateFunc) (*Session, error)
	GetRecord(ctx context.Context, userID string) (*GameRecord, error)
}

// CardCatalog resolves card definitions.
type CardCatalog interface {
	GetCard(ctx context.Context, id string) (*CardDefinition, error)
}

// CollectionStore returns a user's owned cards as card id -> quantity.
type CollectionStore interface {
	GetCollection(ctx context.Context, userID string) (map[string]int, error)
}

// Update is the committed state of a session after one mutation.
type Update struct {
	Session *Session
	Events  []rules.Event
}

// Notifier receives every committed update, in commit order per session.
type Notifier interface {
	Notify(ctx context.Context, u Update)
}

// PlaceRequest places a card from hand. An empty Mode means ATTACK.
type PlaceRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"-"`
	CardID   string `json:"cardId"`
	Position int    `json:"position"`
	Mode     string `json:"mode,omitempty"`
}

// ActionRequest performs an action with a board card. An empty TargetCardID attacks the player.
type ActionRequest struct {
	GameID       string `json:"gameId"`
	PlayerID     string `json:"-"`
	BoardCardID  string `json:"gameCardId"`
	Action       string `json:"action"`
	NewMode      string `json:"newMode,omitempty"`
	TargetCardID string `json:"targetCardId,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the receiver of committed updates.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithEventBus publishes every committed event on bus.
func WithEventBus(bus *rules.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithRand sets the shuffle source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the generator for session and board card ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// Service is the transport-independent battle API.
type Service struct {
	logger      *zap.Logger
	rules       Rules
	store       Store
	catalog     CardCatalog
	collections CollectionStore
	notifier    Notifier
	bus         *rules.EventBus
	locks       *keyedMutex

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

// NewService wires a battle service.
func NewService(logger *zap.Logger, cfg Rules, store Store, catalog CardCatalog, collections CollectionStore, opts ...Option) *Service {
	s := &Service{
		logger:      logger,
		rules:       cfg,
		store:       store,
		catalog:     catalog,
		collections: collections,
		locks:       newKeyedMutex(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Rules returns the battle constants in use.
func (s *Service) Rules() Rules { return s.rules }

func (s *Service) buildDeck(ctx context.Context, userID string) ([]string, error) {
	collection, err := s.collections.GetCollection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load collection for %s: %w", userID, err)
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	deck, err := BuildDeck(collection, s.rules.MaxCopiesPerCard, s.rng)
	if err != nil && !errors.Is(err, ErrEmptyCollection) {
		return nil, err
	}
	return deck, nil
}

func (s *Service) newPlayer(id string, deck []string) *PlayerState {
	return &PlayerState{
		ID:     id,
		Health: s.rules.StartingHealth,
		Deck:   deck,
		Hand:   []string{},
	}
}

// CreateGame opens a session for requester. With an opponent the session starts immediately.
// An empty collection is tolerated here; the player simply has no initial hand.
func (s *Service) CreateGame(ctx context.Context, requester, opponent string) (*Session, error) {
	if requester == "" {
		return nil, ErrMissingPlayer
	}
	if opponent == requester {
		return nil, ErrInvalidOpponent
	}

	deck1, err := s.buildDeck(ctx, requester)
	if err != nil {
		return nil, err
	}
	var deck2 []string
	if opponent != "" {
		if deck2, err = s.buildDeck(ctx, opponent); err != nil {
			return nil, err
		}
	}

	now := s.now()
	sess := &Session{
		ID:                  s.newID(),
		Player1:             s.newPlayer(requester, deck1),
		Status:              StatusWaiting,
		CurrentTurnPlayerID: requester,
		TurnNumber:          1,
		Board:               NewBoard(s.rules.BoardPositions),
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	r := newResolution(sess, s.rules, now)
	r.emit(rules.NewEvent(rules.EventGameCreated, sess.ID, "", requester))
	r.draw(requester, s.rules.InitialHandSize)
	if opponent != "" {
		sess.Player2 = s.newPlayer(opponent, deck2)
		sess.Status = StatusInProgress
		r.emit(rules.NewEvent(rules.EventGameStarted, sess.ID, "", requester))
		r.draw(opponent, s.rules.InitialHandSize)
	}

	unlock := s.locks.lock(sess.ID)
	defer unlock()

	if err := s.store.CreateSession(ctx, sess); err != nil {
		s.logger.Error("failed to create game", zap.String("player_id", requester), zap.Error(err))
		return nil, fmt.Errorf("create game: %w", err)
	}

	s.logger.Info("game created",
		zap.String("game_id", sess.ID),
		zap.String("player1", requester),
		zap.String("player2", opponent),
		zap.Int("deck_size", len(deck1)),
	)
	s.publish(ctx, sess, r.events)
	return sess, nil
}

// JoinGame seats requester as player2 and starts the session.
func (s *Service) JoinGame(ctx context.Context, gameID, requester string) (*Session, error) {
	if requester == "" {
		return nil, ErrMissingPlayer
	}
	deck, err := s.buildDeck(ctx, requester)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, gameID, requester, "join", func(r *resolution) error {
		sess := r.s
		if sess.Status != StatusWaiting {
			return ErrGameNotWaiting
		}
		if sess.Player1.ID == requester {
			return ErrAlreadyInGame
		}
		if len(deck) == 0 {
			return ErrNoCardsToPlay
		}
		sess.Player2 = s.newPlayer(requester, append([]string(nil), deck...))
		sess.Status = StatusInProgress
		sess.CurrentTurnPlayerID = sess.Player1.ID
		r.emit(rules.NewEvent(rules.EventPlayerJoined, sess.ID, "", requester))
		r.emit(rules.NewEvent(rules.EventGameStarted, sess.ID, "", sess.Player1.ID))
		r.draw(requester, s.rules.InitialHandSize)
		return nil
	})
}

// PlaceCard puts a card from the requester's hand on their row and ends the turn.
func (s *Service) PlaceCard(ctx context.Context, req PlaceRequest) (*Session, error) {
	if req.PlayerID == "" {
		return nil, ErrMissingPlayer
	}
	if req.Position < 0 || req.Position >= s.rules.BoardPositions {
		return nil, fmt.Errorf("position %d: %w", req.Position, ErrInvalidPosition)
	}
	mode, err := ParseMode(req.Mode, ModeAttack)
	if err != nil {
		return nil, err
	}

	// The definition is read before the update so the catalog never needs a second
	// connection while the session row is locked. Its error only counts once the
	// placement itself is legal.
	def, defErr := s.catalog.GetCard(ctx, req.CardID)

	return s.mutate(ctx, req.GameID, req.PlayerID, "place_card", func(r *resolution) error {
		if err := r.checkPlacement(req.PlayerID, req.CardID, req.Position); err != nil {
			return err
		}
		if defErr != nil {
			return fmt.Errorf("card definition %s: %w", req.CardID, defErr)
		}
		return r.place(req.PlayerID, s.newID(), def, req.Position, mode)
	})
}

// PerformAction switches a board card's mode or attacks with it, then ends the turn.
func (s *Service) PerformAction(ctx context.Context, req ActionRequest) (*Session, error) {
	if req.PlayerID == "" {
		return nil, ErrMissingPlayer
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		return nil, err
	}
	var mode Mode
	if action == ActionSwitchMode {
		if req.NewMode == "" {
			return nil, fmt.Errorf("switch mode without a mode: %w", ErrInvalidMode)
		}
		if mode, err = ParseMode(req.NewMode, ""); err != nil {
			return nil, err
		}
	}

	return s.mutate(ctx, req.GameID, req.PlayerID, "perform_action", func(r *resolution) error {
		return r.act(req.PlayerID, req.BoardCardID, action, mode, req.TargetCardID)
	})
}

// EndTurn passes the turn without acting.
func (s *Service) EndTurn(ctx context.Context, gameID, requester string) (*Session, error) {
	return s.mutate(ctx, gameID, requester, "end_turn", func(r *resolution) error {
		return r.endTurn(requester)
	})
}

// ForfeitGame concedes an in-progress game or cancels a waiting one.
func (s *Service) ForfeitGame(ctx context.Context, gameID, requester string) (*Session, error) {
	return s.mutate(ctx, gameID, requester, "forfeit", func(r *resolution) error {
		return r.forfeit(requester)
	})
}

// GetGame returns the current state of a session.
func (s *Service) GetGame(ctx context.Context, gameID string) (*Session, error) {
	return s.store.GetSession(ctx, gameID)
}

// GetAvailableGames lists WAITING sessions that requester did not create.
func (s *Service) GetAvailableGames(ctx context.Context, requester string) ([]*Session, error) {
	return s.store.ListSessions(ctx, SessionFilter{
		Statuses:     []Status{StatusWaiting},
		NotCreatedBy: requester,
	})
}

// GetMyGames lists unfinished sessions requester participates in, most recently updated first.
func (s *Service) GetMyGames(ctx context.Context, requester string) ([]*Session, error) {
	return s.store.ListSessions(ctx, SessionFilter{
		Participant:   requester,
		ExcludeStatus: StatusFinished,
	})
}

// GetPlayerRecord returns userID's record, zero-valued when they have not finished a game.
func (s *Service) GetPlayerRecord(ctx context.Context, userID string) (*GameRecord, error) {
	return s.store.GetRecord(ctx, userID)
}

// mutate runs fn on a private copy of the session under the per-game lock, commits it with
// its record updates and publishes the result while still holding the lock.
func (s *Service) mutate(ctx context.Context, gameID, playerID, op string, fn func(r *resolution) error) (*Session, error) {
	unlock := s.locks.lock(gameID)
	defer unlock()

	now := s.now()
	var events []rules.Event
	updated, err := s.store.UpdateSession(ctx, gameID, func(sess *Session) ([]RecordUpdate, error) {
		r := newResolution(sess, s.rules, now)
		if err := fn(r); err != nil {
			return nil, err
		}
		sess.Version++
		sess.UpdatedAt = now
		events = r.events
		return r.records, nil
	})
	if err != nil {
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("game_id", gameID),
			zap.String("player_id", playerID),
			zap.Error(err),
		}
		if KindOf(err) == KindInternal {
			s.logger.Error("game operation failed", fields...)
		} else {
			s.logger.Debug("game operation rejected", append(fields, zap.String("code", CodeOf(err)))...)
		}
		return nil, err
	}

	s.logger.Debug("game operation applied",
		zap.String("op", op),
		zap.String("game_id", gameID),
		zap.String("player_id", playerID),
		zap.Int64("version", updated.Version),
		zap.Int("events", len(events)),
	)
	if updated.Status == StatusFinished {
		s.logger.Info("game finished",
			zap.String("game_id", gameID),
			zap.String("winner_id", updated.WinnerID),
			zap.Int("turn", updated.TurnNumber),
		)
	}
	s.publish(ctx, updated, events)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, sess *Session, events []rules.Event) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, Update{Session: sess.Clone(), Events: events})
	}
	if s.bus != nil {
		s.bus.PublishBatch(events)
	}
}

// keyedMutex hands out one mutex per key and frees it when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
