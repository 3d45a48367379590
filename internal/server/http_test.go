package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/config"
	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/cardclash/battle-server-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) *game.Service {
	t.Helper()
	collections := repository.NewMemoryCollections(nil)
	collections.SetCollection("alice", map[string]int{"storm-hawk": 3})
	collections.SetCollection("bob", map[string]int{"fire-imp": 3})
	return game.NewService(zaptest.NewLogger(t), game.DefaultRules(),
		repository.NewMemoryStore(),
		repository.NewMemoryCatalog(repository.StarterCards()...),
		collections,
		game.WithRand(rand.New(rand.NewSource(3))),
	)
}

type httpHarness struct {
	handler  http.Handler
	verifier *auth.Verifier
}

func newHTTPHarness(t *testing.T) *httpHarness {
	t.Helper()
	verifier := auth.NewVerifier(testSecret)
	cfg := config.HTTPConfig{RequestTimeout: 5 * time.Second, AllowedOrigins: []string{"http://localhost:5173"}}
	return &httpHarness{
		handler:  NewRouter(cfg, newTestService(t), nil, verifier, zaptest.NewLogger(t)),
		verifier: verifier,
	}
}

func (h *httpHarness) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, err := h.verifier.Issue(user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHTTP_HealthAndAuth(t *testing.T) {
	h := newHTTPHarness(t)

	rec, body := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = h.do(t, http.MethodGet, "/v1/games/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = h.do(t, http.MethodGet, "/v1/nope", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestHTTP_GameFlow(t *testing.T) {
	h := newHTTPHarness(t)

	rec, body := h.do(t, http.MethodPost, "/v1/games", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gameID := body["id"].(string)
	assert.Equal(t, "WAITING", body["status"])

	rec, _ = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/join", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = h.do(t, http.MethodGet, "/v1/games/available", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "IN_PROGRESS", body["status"])

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/place-card", "alice",
		map[string]any{"cardId": "storm-hawk", "position": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_POSITION", body["code"])

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/place-card", "bob",
		map[string]any{"cardId": "fire-imp", "position": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_YOUR_TURN", body["code"])

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/place-card", "alice",
		map[string]any{"cardId": "storm-hawk", "position": 1, "mode": "DEFENSE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bob", body["currentTurnPlayerId"])
	board := body["board"].([]any)
	require.Len(t, board, 1)
	hawkID := board[0].(map[string]any)["id"].(string)

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/action", "bob",
		map[string]any{"gameCardId": hawkID, "action": "SWITCH_MODE", "newMode": "ATTACK"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_YOUR_CARD", body["code"])

	rec, _ = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/end-turn", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/action", "alice",
		map[string]any{"gameCardId": hawkID, "action": "SWITCH_MODE", "newMode": "ATTACK"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = h.do(t, http.MethodPost, "/v1/games/"+gameID+"/forfeit", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FINISHED", body["status"])
	assert.Equal(t, "alice", body["winnerId"])

	rec, body = h.do(t, http.MethodGet, "/v1/records/me", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["wins"])

	rec, body = h.do(t, http.MethodGet, "/v1/records/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["losses"])

	rec, body = h.do(t, http.MethodGet, "/v1/games/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "GAME_NOT_FOUND", body["code"])
}

func TestHTTP_MalformedBody(t *testing.T) {
	h := newHTTPHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/games", bytes.NewBufferString("{not json"))
	token, err := h.verifier.Issue("alice", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MALFORMED_REQUEST")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(game.ErrInvalidMode))
	assert.Equal(t, http.StatusConflict, HTTPStatus(game.ErrBlockedByCards))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(game.ErrTargetNotFound))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(game.ErrNotAParticipant))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(assert.AnError))
}
