package realtime

import (
	"context"
	"sync"

	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSendBuffer is the per-connection queue length used when none is configured.
const DefaultSendBuffer = 256

// Client is one connection's view of the registry: a FIFO send queue plus the last
// version delivered for each subscribed game.
type Client struct {
	ID     string
	UserID string

	send chan []byte

	mu     sync.Mutex
	games  map[string]int64
	closed bool
}

// Send returns the queue drained by the connection writer. It is closed on Remove.
func (c *Client) Send() <-chan []byte { return c.send }

// offer queues payload unless the client is gone or already saw version. A version
// of 0 bypasses the check. It reports false when the queue is full.
func (c *Client) offer(gameID string, version int64, payload []byte) (queued, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, true
	}
	if version > 0 {
		last, subscribed := c.games[gameID]
		if !subscribed || version <= last {
			return false, true
		}
	}
	select {
	case c.send <- payload:
		if version > 0 {
			c.games[gameID] = version
		}
		return true, true
	default:
		return false, false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Registry maps connections to the games they follow. It implements game.Notifier for
// single-instance deployments; with NATS the Relay feeds it instead.
type Registry struct {
	logger *zap.Logger
	buffer int

	mu      sync.RWMutex
	clients map[string]*Client
	byGame  map[string]map[string]*Client
}

// NewRegistry creates an empty registry. buffer <= 0 selects DefaultSendBuffer.
func NewRegistry(logger *zap.Logger, buffer int) *Registry {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Registry{
		logger:  logger,
		buffer:  buffer,
		clients: make(map[string]*Client),
		byGame:  make(map[string]map[string]*Client),
	}
}

// Add registers a new connection for userID.
func (r *Registry) Add(userID string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, r.buffer),
		games:  make(map[string]int64),
	}
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()

	r.logger.Debug("client registered",
		zap.String("client_id", c.ID),
		zap.String("user_id", userID),
	)
	return c
}

// Remove drops c and all its subscriptions and closes its send queue. Safe to call twice.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	if _, ok := r.clients[c.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c.ID)
	c.mu.Lock()
	for gameID := range c.games {
		r.unlinkLocked(gameID, c.ID)
	}
	c.mu.Unlock()
	r.mu.Unlock()

	c.close()
	r.logger.Debug("client unregistered",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID),
	)
}

// CloseAll removes every connection, closing their send queues. Writers send a close
// frame and exit.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		r.Remove(c)
	}
	r.logger.Info("closed all websocket clients", zap.Int("count", len(clients)))
}

func (r *Registry) unlinkLocked(gameID, clientID string) {
	subs := r.byGame[gameID]
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(r.byGame, gameID)
	}
}

// Subscribe adds gameID to c's subscriptions. It reports false when c already follows it.
func (r *Registry) Subscribe(c *Client, gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.games[gameID]; ok {
		return false
	}
	c.games[gameID] = 0
	subs := r.byGame[gameID]
	if subs == nil {
		subs = make(map[string]*Client)
		r.byGame[gameID] = subs
	}
	subs[c.ID] = c
	return true
}

// Unsubscribe removes gameID from c's subscriptions.
func (r *Registry) Unsubscribe(c *Client, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.mu.Lock()
	delete(c.games, gameID)
	c.mu.Unlock()
	r.unlinkLocked(gameID, c.ID)
}

// Subscribers returns the number of clients following gameID.
func (r *Registry) Subscribers(gameID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byGame[gameID])
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Deliver queues payload for every subscriber of gameID that has not yet seen version.
// Clients whose queue is full are disconnected.
func (r *Registry) Deliver(gameID string, version int64, payload []byte) int {
	r.mu.RLock()
	subs := make([]*Client, 0, len(r.byGame[gameID]))
	for _, c := range r.byGame[gameID] {
		subs = append(subs, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range subs {
		queued, ok := c.offer(gameID, version, payload)
		if !ok {
			r.logger.Warn("dropping slow client",
				zap.String("client_id", c.ID),
				zap.String("user_id", c.UserID),
				zap.String("game_id", gameID),
			)
			r.Remove(c)
			continue
		}
		if queued {
			delivered++
		}
	}
	return delivered
}

// Push queues a state for one client, subject to the same version check as Deliver.
func (r *Registry) Push(c *Client, gameID string, version int64, payload []byte) bool {
	queued, ok := c.offer(gameID, version, payload)
	if !ok {
		r.Remove(c)
	}
	return queued
}

// Reply queues a non-versioned message such as an ack.
func (r *Registry) Reply(c *Client, payload []byte) bool {
	return r.Push(c, "", 0, payload)
}

// Notify implements game.Notifier.
func (r *Registry) Notify(ctx context.Context, u game.Update) {
	payload, err := EncodePush(u)
	if err != nil {
		r.logger.Error("failed to encode game update",
			zap.String("game_id", u.Session.ID),
			zap.Error(err),
		)
		return
	}
	r.Deliver(u.Session.ID, u.Session.Version, payload)
}
