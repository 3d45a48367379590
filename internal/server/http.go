package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/config"
	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// httpAPI serves the REST surface of game.Service.
type httpAPI struct {
	svc    *game.Service
	logger *zap.Logger
}

// NewRouter builds the HTTP handler: REST routes under /v1, the WebSocket endpoint at
// /v1/ws and an unauthenticated /health.
func NewRouter(cfg config.HTTPConfig, svc *game.Service, ws http.Handler, verifier *auth.Verifier, logger *zap.Logger) http.Handler {
	api := &httpAPI{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if ws != nil {
			r.Method(http.MethodGet, "/ws", ws)
		}

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(chimw.Timeout(cfg.RequestTimeout))
			}
			r.Use(auth.Middleware(verifier, logger))

			r.Post("/games", api.createGame)
			r.Get("/games/available", api.availableGames)
			r.Get("/games/mine", api.myGames)
			r.Get("/games/{id}", api.getGame)
			r.Post("/games/{id}/join", api.joinGame)
			r.Post("/games/{id}/place-card", api.placeCard)
			r.Post("/games/{id}/action", api.performAction)
			r.Post("/games/{id}/end-turn", api.endTurn)
			r.Post("/games/{id}/forfeit", api.forfeit)
			r.Get("/records/me", api.myRecord)
			r.Get("/records/{userID}", api.record)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Code: "NOT_FOUND"})
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HTTPStatus maps an error kind to its HTTP status.
func HTTPStatus(err error) int {
	switch game.KindOf(err) {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindConflict:
		return http.StatusConflict
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (a *httpAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	body := errorBody{Error: err.Error(), Code: game.CodeOf(err)}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode body: %w", game.ErrMalformed)
	}
	return nil
}

func (a *httpAPI) respond(w http.ResponseWriter, r *http.Request, s *game.Session, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func (a *httpAPI) createGame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpponentID string `json:"opponentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.svc.CreateGame(r.Context(), userID(r), body.OpponentID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game.NewView(s))
}

func (a *httpAPI) availableGames(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.svc.GetAvailableGames(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewViews(sessions))
}

func (a *httpAPI) myGames(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.svc.GetMyGames(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewViews(sessions))
}

func (a *httpAPI) getGame(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.GetGame(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, s, err)
}

func (a *httpAPI) joinGame(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.JoinGame(r.Context(), chi.URLParam(r, "id"), userID(r))
	a.respond(w, r, s, err)
}

func (a *httpAPI) placeCard(w http.ResponseWriter, r *http.Request) {
	var req game.PlaceRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.GameID = chi.URLParam(r, "id")
	req.PlayerID = userID(r)
	s, err := a.svc.PlaceCard(r.Context(), req)
	a.respond(w, r, s, err)
}

func (a *httpAPI) performAction(w http.ResponseWriter, r *http.Request) {
	var req game.ActionRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.GameID = chi.URLParam(r, "id")
	req.PlayerID = userID(r)
	s, err := a.svc.PerformAction(r.Context(), req)
	a.respond(w, r, s, err)
}

func (a *httpAPI) endTurn(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.EndTurn(r.Context(), chi.URLParam(r, "id"), userID(r))
	a.respond(w, r, s, err)
}

func (a *httpAPI) forfeit(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.ForfeitGame(r.Context(), chi.URLParam(r, "id"), userID(r))
	a.respond(w, r, s, err)
}

func (a *httpAPI) myRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetPlayerRecord(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *httpAPI) record(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetPlayerRecord(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
