package repository

import (
	"context"
	"fmt"

	"github.com/cardclash/battle-server-go/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewDB opens a pgx pool and verifies the connection.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS cards (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	attack     INTEGER NOT NULL,
	defense    INTEGER NOT NULL,
	ability    JSONB
);

CREATE TABLE IF NOT EXISTS user_cards (
	user_id  TEXT NOT NULL,
	card_id  TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	PRIMARY KEY (user_id, card_id)
);

CREATE TABLE IF NOT EXISTS battle_sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	player1_id  TEXT NOT NULL,
	player2_id  TEXT,
	version     BIGINT NOT NULL,
	state       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS battle_sessions_status_idx ON battle_sessions (status, updated_at DESC);
CREATE INDEX IF NOT EXISTS battle_sessions_player1_idx ON battle_sessions (player1_id);
CREATE INDEX IF NOT EXISTS battle_sessions_player2_idx ON battle_sessions (player2_id);

CREATE TABLE IF NOT EXISTS game_records (
	user_id     TEXT PRIMARY KEY,
	wins        INTEGER NOT NULL DEFAULT 0,
	losses      INTEGER NOT NULL DEFAULT 0,
	draws       INTEGER NOT NULL DEFAULT 0,
	total_games INTEGER NOT NULL DEFAULT 0
);
`

// Migrate creates the tables the stores need if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
