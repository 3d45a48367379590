package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Games is the subset of game.Service the socket transport drives.
type Games interface {
	CreateGame(ctx context.Context, requester, opponent string) (*game.Session, error)
	JoinGame(ctx context.Context, gameID, requester string) (*game.Session, error)
	PlaceCard(ctx context.Context, req game.PlaceRequest) (*game.Session, error)
	PerformAction(ctx context.Context, req game.ActionRequest) (*game.Session, error)
	EndTurn(ctx context.Context, gameID, requester string) (*game.Session, error)
	ForfeitGame(ctx context.Context, gameID, requester string) (*game.Session, error)
	GetGame(ctx context.Context, gameID string) (*game.Session, error)
}

// Handler upgrades authenticated requests to WebSocket connections.
type Handler struct {
	games          Games
	registry       *Registry
	verifier       *auth.Verifier
	logger         *zap.Logger
	upgrader       websocket.Upgrader
	requestTimeout time.Duration
}

// NewHandler creates the /v1/ws handler. An empty allowedOrigins accepts any origin.
func NewHandler(games Games, registry *Registry, verifier *auth.Verifier, allowedOrigins []string, requestTimeout time.Duration, logger *zap.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		games:          games,
		registry:       registry,
		verifier:       verifier,
		logger:         logger,
		requestTimeout: requestTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		h.logger.Debug("websocket auth failed", zap.Error(err))
		http.Error(w, `{"error":"unauthorized","code":"UNAUTHORIZED"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := h.registry.Add(userID)
	h.logger.Info("websocket connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID),
	)

	go h.writePump(conn, client)
	h.readPump(r.Context(), conn, client)
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, c *Client) {
	defer func() {
		h.registry.Remove(c)
		conn.Close()
		h.logger.Info("websocket disconnected",
			zap.String("client_id", c.ID),
			zap.String("user_id", c.UserID),
		)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			h.reply(c, errorAck("", fmt.Errorf("decode message: %w", game.ErrMalformed)))
			continue
		}
		h.reply(c, h.dispatch(ctx, c, req))
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) reply(c *Client, ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		h.logger.Error("failed to encode ack", zap.String("client_id", c.ID), zap.Error(err))
		return
	}
	h.registry.Reply(c, payload)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode data: %w", game.ErrMalformed)
	}
	return nil
}

// dispatch runs one client request and returns its ack. Mutations broadcast through the
// service's notifier before the ack is queued.
func (h *Handler) dispatch(parent context.Context, c *Client, req Request) Ack {
	ctx := parent
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, h.requestTimeout)
		defer cancel()
	}

	var (
		sess *game.Session
		err  error
	)
	switch req.Type {
	case MsgSubscribeToGame:
		var ref gameRef
		if err = decode(req.Data, &ref); err == nil {
			sess, err = h.subscribe(ctx, c, ref.GameID)
		}
	case MsgUnsubscribeFromGame:
		var ref gameRef
		if err = decode(req.Data, &ref); err == nil {
			h.registry.Unsubscribe(c, ref.GameID)
		}
	case MsgCreateGame:
		var data createGameData
		if err = decode(req.Data, &data); err == nil {
			if sess, err = h.games.CreateGame(ctx, c.UserID, data.OpponentID); err == nil {
				_, err = h.subscribe(ctx, c, sess.ID)
			}
		}
	case MsgJoinGame:
		var ref gameRef
		if err = decode(req.Data, &ref); err == nil {
			added := h.registry.Subscribe(c, ref.GameID)
			if sess, err = h.games.JoinGame(ctx, ref.GameID, c.UserID); err != nil && added {
				h.registry.Unsubscribe(c, ref.GameID)
			}
		}
	case MsgPlaceCard:
		var data game.PlaceRequest
		if err = decode(req.Data, &data); err == nil {
			data.PlayerID = c.UserID
			sess, err = h.games.PlaceCard(ctx, data)
		}
	case MsgPerformAction:
		var data game.ActionRequest
		if err = decode(req.Data, &data); err == nil {
			data.PlayerID = c.UserID
			sess, err = h.games.PerformAction(ctx, data)
		}
	case MsgEndTurn:
		var ref gameRef
		if err = decode(req.Data, &ref); err == nil {
			sess, err = h.games.EndTurn(ctx, ref.GameID, c.UserID)
		}
	case MsgForfeitGame:
		var ref gameRef
		if err = decode(req.Data, &ref); err == nil {
			sess, err = h.games.ForfeitGame(ctx, ref.GameID, c.UserID)
		}
	case MsgGetGame:
		var ref gameRef
		if err = decode(req.Data, &ref); err == nil {
			sess, err = h.games.GetGame(ctx, ref.GameID)
		}
	default:
		err = fmt.Errorf("unknown message type %q: %w", req.Type, game.ErrMalformed)
	}

	if err != nil {
		if game.KindOf(err) == game.KindInternal {
			h.logger.Error("websocket request failed",
				zap.String("type", req.Type),
				zap.String("client_id", c.ID),
				zap.String("user_id", c.UserID),
				zap.Error(err),
			)
		}
		return errorAck(req.RequestID, err)
	}
	return successAck(req.RequestID, sess)
}

// subscribe follows gameID and pushes its current state to c. The push is subject to the
// version check, so a newer broadcast that raced ahead is never overwritten.
func (h *Handler) subscribe(ctx context.Context, c *Client, gameID string) (*game.Session, error) {
	added := h.registry.Subscribe(c, gameID)
	sess, err := h.games.GetGame(ctx, gameID)
	if err != nil {
		if added {
			h.registry.Unsubscribe(c, gameID)
		}
		return nil, err
	}
	payload, err := EncodePush(game.Update{Session: sess})
	if err != nil {
		return nil, fmt.Errorf("encode state of %s: %w", gameID, err)
	}
	h.registry.Push(c, gameID, sess.Version, payload)
	return sess, nil
}
