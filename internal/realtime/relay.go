package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cardclash/battle-server-go/internal/config"
	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connect opens a NATS connection from cfg.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("battle-server"),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	return conn, nil
}

// Envelope is the NATS message for one committed state.
type Envelope struct {
	GameID  string          `json:"gameId"`
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher is the part of *nats.Conn the relay publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Relay fans committed states out to every server instance. Each instance, including
// the publishing one, receives the envelope on its subscription and delivers it to its
// own registry; per-client version checks discard duplicates and stale states.
type Relay struct {
	pub      Publisher
	registry *Registry
	prefix   string
	logger   *zap.Logger
}

// NewRelay creates a relay publishing under prefix, e.g. "battle.game".
func NewRelay(pub Publisher, registry *Registry, prefix string, logger *zap.Logger) *Relay {
	return &Relay{pub: pub, registry: registry, prefix: prefix, logger: logger}
}

// Subject returns the subject for gameID.
func (rl *Relay) Subject(gameID string) string {
	return rl.prefix + "." + gameID
}

// Subscribe attaches the relay to all game subjects on conn.
func (rl *Relay) Subscribe(conn *nats.Conn) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(rl.prefix+".*", func(m *nats.Msg) {
		rl.Handle(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s.*: %w", rl.prefix, err)
	}
	return sub, nil
}

// Notify implements game.Notifier. If publishing fails the update is still delivered
// to local subscribers.
func (rl *Relay) Notify(ctx context.Context, u game.Update) {
	payload, err := EncodePush(u)
	if err != nil {
		rl.logger.Error("failed to encode game update",
			zap.String("game_id", u.Session.ID),
			zap.Error(err),
		)
		return
	}
	env, err := json.Marshal(Envelope{GameID: u.Session.ID, Version: u.Session.Version, Payload: payload})
	if err != nil {
		rl.logger.Error("failed to encode envelope", zap.String("game_id", u.Session.ID), zap.Error(err))
		return
	}
	if err := rl.pub.Publish(rl.Subject(u.Session.ID), env); err != nil {
		rl.logger.Warn("nats publish failed, delivering locally",
			zap.String("game_id", u.Session.ID),
			zap.Int64("version", u.Session.Version),
			zap.Error(err),
		)
		rl.registry.Deliver(u.Session.ID, u.Session.Version, payload)
	}
}

// Handle delivers one received envelope to the local registry.
func (rl *Relay) Handle(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		rl.logger.Error("malformed relay message", zap.Error(err))
		return
	}
	if env.GameID == "" || env.Version <= 0 {
		rl.logger.Warn("relay message without game or version", zap.String("game_id", env.GameID))
		return
	}
	rl.registry.Deliver(env.GameID, env.Version, env.Payload)
}
