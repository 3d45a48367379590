package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SessionStore is the Postgres game.Store. Each update runs in a transaction holding
// a row lock on the session, so several server instances can share one database.
type SessionStore struct {
	db *pgxpool.Pool
}

// NewSessionStore creates a store on pool.
func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func encodeSession(s *game.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*game.Session, error) {
	var s game.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Board == nil {
		s.Board = game.NewBoard(game.DefaultRules().BoardPositions)
	}
	return &s, nil
}

func player2ID(s *game.Session) *string {
	if s.Player2 == nil {
		return nil
	}
	return &s.Player2.ID
}

// CreateSession inserts a new session row.
func (st *SessionStore) CreateSession(ctx context.Context, s *game.Session) error {
	state, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = st.db.Exec(ctx, `
		INSERT INTO battle_sessions (id, status, player1_id, player2_id, version, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, string(s.Status), s.Player1.ID, player2ID(s), s.Version, state, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession loads one session.
func (st *SessionStore) GetSession(ctx context.Context, id string) (*game.Session, error) {
	var state []byte
	err := st.db.QueryRow(ctx, `SELECT state FROM battle_sessions WHERE id = $1`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, game.ErrGameNotFound)
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return decodeSession(state)
}

// ListSessions queries sessions matching filter, most recently updated first.
func (st *SessionStore) ListSessions(ctx context.Context, filter game.SessionFilter) ([]*game.Session, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if filter.ExcludeStatus != "" {
		where = append(where, "status <> "+arg(string(filter.ExcludeStatus)))
	}
	if filter.Participant != "" {
		p := arg(filter.Participant)
		where = append(where, "(player1_id = "+p+" OR player2_id = "+p+")")
	}
	if filter.NotCreatedBy != "" {
		where = append(where, "player1_id <> "+arg(filter.NotCreatedBy))
	}

	query := `SELECT state FROM battle_sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"

	rows, err := st.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*game.Session, 0)
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s, err := decodeSession(state)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession locks the session row, applies fn and commits the new state together
// with any record updates. Nothing is written when fn fails.
func (st *SessionStore) UpdateSession(ctx context.Context, id string, fn game.UpdateFunc) (*game.Session, error) {
	tx, err := st.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var state []byte
	err = tx.QueryRow(ctx, `SELECT state FROM battle_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, game.ErrGameNotFound)
		}
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}

	s, err := decodeSession(state)
	if err != nil {
		return nil, err
	}
	updates, err := fn(s)
	if err != nil {
		return nil, err
	}

	if state, err = encodeSession(s); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE battle_sessions
		SET status = $2, player2_id = $3, version = $4, state = $5, updated_at = $6
		WHERE id = $1
	`, s.ID, string(s.Status), player2ID(s), s.Version, state, s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}

	for _, u := range updates {
		var rec game.GameRecord
		u.Apply(&rec)
		_, err = tx.Exec(ctx, `
			INSERT INTO game_records (user_id, wins, losses, draws, total_games)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				wins        = game_records.wins + EXCLUDED.wins,
				losses      = game_records.losses + EXCLUDED.losses,
				draws       = game_records.draws + EXCLUDED.draws,
				total_games = game_records.total_games + EXCLUDED.total_games
		`, rec.UserID, rec.Wins, rec.Losses, rec.Draws, rec.TotalGames)
		if err != nil {
			return nil, fmt.Errorf("update record for %s: %w", u.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit session %s: %w", id, err)
	}
	return s, nil
}

// GetRecord returns the user's record, zero-valued when none exists.
func (st *SessionStore) GetRecord(ctx context.Context, userID string) (*game.GameRecord, error) {
	rec := &game.GameRecord{UserID: userID}
	err := st.db.QueryRow(ctx, `
		SELECT wins, losses, draws, total_games FROM game_records WHERE user_id = $1
	`, userID).Scan(&rec.Wins, &rec.Losses, &rec.Draws, &rec.TotalGames)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get record for %s: %w", userID, err)
	}
	return rec, nil
}

// CardStore reads the card catalog and user collections.
type CardStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCardStore creates a catalog and collection store on pool.
func NewCardStore(db *pgxpool.Pool, logger *zap.Logger) *CardStore {
	return &CardStore{db: db, logger: logger}
}

// GetCard implements game.CardCatalog. Abilities the server cannot resolve are dropped.
func (cs *CardStore) GetCard(ctx context.Context, id string) (*game.CardDefinition, error) {
	var (
		card    game.CardDefinition
		ability []byte
	)
	err := cs.db.QueryRow(ctx, `
		SELECT id, name, attack, defense, ability FROM cards WHERE id = $1
	`, id).Scan(&card.ID, &card.Name, &card.Attack, &card.Defense, &ability)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("card %s not in catalog", id)
		}
		return nil, fmt.Errorf("get card %s: %w", id, err)
	}

	a, err := game.DecodeAbility(ability)
	if err != nil {
		cs.logger.Warn("dropping card ability",
			zap.String("card_id", id),
			zap.String("card_name", card.Name),
			zap.Error(err),
		)
		a = nil
	}
	card.Ability = a
	return &card, nil
}

// GetCollection implements game.CollectionStore.
func (cs *CardStore) GetCollection(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := cs.db.Query(ctx, `
		SELECT card_id, quantity FROM user_cards WHERE user_id = $1 AND quantity > 0
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("get collection for %s: %w", userID, err)
	}
	defer rows.Close()

	collection := make(map[string]int)
	for rows.Next() {
		var (
			cardID string
			qty    int
		)
		if err := rows.Scan(&cardID, &qty); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collection[cardID] = qty
	}
	return collection, rows.Err()
}

// UpsertCard inserts or replaces a catalog card.
func (cs *CardStore) UpsertCard(ctx context.Context, card *game.CardDefinition) error {
	var ability []byte
	if card.Ability != nil {
		var err error
		if ability, err = json.Marshal(card.Ability); err != nil {
			return fmt.Errorf("encode ability of %s: %w", card.ID, err)
		}
	}
	_, err := cs.db.Exec(ctx, `
		INSERT INTO cards (id, name, attack, defense, ability)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, attack = EXCLUDED.attack,
			defense = EXCLUDED.defense, ability = EXCLUDED.ability
	`, card.ID, card.Name, card.Attack, card.Defense, ability)
	if err != nil {
		return fmt.Errorf("upsert card %s: %w", card.ID, err)
	}
	return nil
}

// SetCollection replaces a user's owned cards.
func (cs *CardStore) SetCollection(ctx context.Context, userID string, cards map[string]int) error {
	tx, err := cs.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_cards WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear collection for %s: %w", userID, err)
	}
	batch := &pgx.Batch{}
	for cardID, qty := range cards {
		batch.Queue(`INSERT INTO user_cards (user_id, card_id, quantity) VALUES ($1, $2, $3)`, userID, cardID, qty)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert collection for %s: %w", userID, err)
	}
	return tx.Commit(ctx)
}
