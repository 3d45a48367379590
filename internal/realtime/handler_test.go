package realtime_test

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/cardclash/battle-server-go/internal/realtime"
	"github.com/cardclash/battle-server-go/internal/repository"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type wsHarness struct {
	server   *httptest.Server
	verifier *auth.Verifier
	registry *realtime.Registry
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := realtime.NewRegistry(logger, 32)
	svc := game.NewService(logger, game.DefaultRules(),
		repository.NewMemoryStore(),
		repository.NewMemoryCatalog(repository.StarterCards()...),
		repository.NewMemoryCollections(repository.StarterCollection()),
		game.WithNotifier(registry),
		game.WithRand(rand.New(rand.NewSource(7))),
	)
	verifier := auth.NewVerifier("test-secret")
	srv := httptest.NewServer(realtime.NewHandler(svc, registry, verifier, nil, 5*time.Second, logger))
	t.Cleanup(srv.Close)
	return &wsHarness{server: srv, verifier: verifier, registry: registry}
}

func (h *wsHarness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := h.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
	Code      string          `json:"code"`
	Version   int64           `json:"version"`
	Game      *game.View      `json:"game"`
	Events    json.RawMessage `json:"events"`
}

func send(t *testing.T, conn *websocket.Conn, typ, requestID string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(realtime.Request{Type: typ, RequestID: requestID, Data: raw}))
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg inbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	h := newWSHarness(t)
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_CreateJoinAndBroadcast(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, realtime.MsgCreateGame, "r1", map[string]string{})
	push := read(t, alice)
	require.Equal(t, realtime.MsgGameUpdated, push.Type)
	assert.Equal(t, int64(1), push.Version)
	ack := read(t, alice)
	require.Equal(t, realtime.MsgAck, ack.Type)
	require.True(t, ack.Success)
	assert.Equal(t, "r1", ack.RequestID)
	gameID := ack.Game.ID

	send(t, bob, realtime.MsgJoinGame, "r2", map[string]string{"gameId": gameID})
	push = read(t, bob)
	require.Equal(t, realtime.MsgGameUpdated, push.Type)
	assert.Equal(t, int64(2), push.Version)
	ack = read(t, bob)
	require.True(t, ack.Success)
	assert.Equal(t, game.StatusInProgress, ack.Game.Status)

	push = read(t, alice)
	require.Equal(t, realtime.MsgGameUpdated, push.Type)
	assert.Equal(t, int64(2), push.Version)
	assert.Equal(t, "bob", push.Game.Player2.ID)

	send(t, bob, realtime.MsgEndTurn, "r3", map[string]string{"gameId": gameID})
	ack = read(t, bob)
	assert.False(t, ack.Success)
	assert.Equal(t, "NOT_YOUR_TURN", ack.Code)

	send(t, alice, realtime.MsgEndTurn, "r4", map[string]string{"gameId": gameID})
	push = read(t, alice)
	assert.Equal(t, int64(3), push.Version)
	ack = read(t, alice)
	assert.True(t, ack.Success)
	push = read(t, bob)
	assert.Equal(t, int64(3), push.Version)
	assert.Equal(t, "bob", push.Game.CurrentTurnPlayerID)
}

func TestHandler_SubscribeIsIdempotentAndPushesState(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice")
	carol := h.dial(t, "carol")

	send(t, alice, realtime.MsgCreateGame, "c", map[string]string{})
	read(t, alice)
	gameID := read(t, alice).Game.ID

	send(t, carol, realtime.MsgSubscribeToGame, "s1", map[string]string{"gameId": gameID})
	push := read(t, carol)
	require.Equal(t, realtime.MsgGameUpdated, push.Type)
	assert.Equal(t, int64(1), push.Version)
	assert.True(t, read(t, carol).Success)

	send(t, carol, realtime.MsgSubscribeToGame, "s2", map[string]string{"gameId": gameID})
	ack := read(t, carol)
	require.Equal(t, realtime.MsgAck, ack.Type, "current state was already delivered")
	assert.True(t, ack.Success)
	assert.Equal(t, "s2", ack.RequestID)
	assert.Equal(t, 2, h.registry.Subscribers(gameID))

	send(t, carol, realtime.MsgSubscribeToGame, "s3", map[string]string{"gameId": "missing"})
	ack = read(t, carol)
	assert.False(t, ack.Success)
	assert.Equal(t, "GAME_NOT_FOUND", ack.Code)

	send(t, carol, "dance", "s4", nil)
	ack = read(t, carol)
	assert.False(t, ack.Success)
	assert.Equal(t, "MALFORMED_REQUEST", ack.Code)
}
