package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/chat"
	"github.com/ashureev/dispatch-trainer/internal/config"
	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/game"
	"github.com/ashureev/dispatch-trainer/internal/identity"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles game session endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/choices", h.ListChoices)
		r.Get("/history", h.History)
		r.Post("/sessions", h.Create)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/next", h.Next)
			r.Post("/choice", h.Choice)
			r.Delete("/", h.End)
		})
	})
}

type createRequest struct {
	Mode string `json:"mode"`
}

type choiceRequest struct {
	Choice string `json:"choice"`
}

type choiceInfo struct {
	ID    domain.Choice `json:"id"`
	Label string        `json:"label"`
}

type sessionResponse struct {
	ID       string              `json:"id"`
	State    domain.SessionState `json:"state"`
	Scenario *scenarioView       `json:"scenario,omitempty"`
}

// scenarioView is the client-visible part of a scenario. Grading data is
// never exposed.
type scenarioView struct {
	ID         string `json:"id"`
	Status     string `json:"status,omitempty"`
	DriverName string `json:"driver_name,omitempty"`
	Difficulty int    `json:"difficulty"`
}

type nextResponse struct {
	Scenario      scenarioView          `json:"scenario"`
	Tier          int                   `json:"tier"`
	PoolExhausted bool                  `json:"pool_exhausted"`
	Interrupted   bool                  `json:"interrupted"`
	Notice        string                `json:"notice,omitempty"`
	Messages      []chat.MessagePayload `json:"messages"`
	State         domain.SessionState   `json:"state"`
}

type choiceResponse struct {
	Result domain.TurnResult   `json:"result"`
	Echo   string              `json:"echo"`
	State  domain.SessionState `json:"state"`
}

func viewOf(s domain.Scenario) scenarioView {
	return scenarioView{ID: s.ID, Status: s.Status, DriverName: s.DriverName, Difficulty: s.Difficulty}
}

// ListChoices returns the dispatcher actions and their labels.
func (h *SessionHandler) ListChoices(w http.ResponseWriter, _ *http.Request) {
	out := make([]choiceInfo, 0, len(domain.Choices))
	for _, c := range domain.Choices {
		out = append(out, choiceInfo{ID: c, Label: c.Label()})
	}
	JSON(w, http.StatusOK, out)
}

// Create starts a new session for the current player.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	playerID := identity.PlayerIDFromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.reg.Create(playerID, mode)
	switch {
	case errors.Is(err, game.ErrCatalogEmpty):
		Error(w, http.StatusServiceUnavailable, "scenario catalog is empty")
		return
	case errors.Is(err, game.ErrInvalidMode):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Failed to create session", "error", err, "player_id", playerID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	JSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, State: sess.Controller.Snapshot()})
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	sess, err := h.reg.Get(chi.URLParam(r, "id"), identity.PlayerIDFromContext(r.Context()))
	if err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// Get returns the state of a session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	resp := sessionResponse{ID: sess.ID, State: sess.Controller.Snapshot()}
	if s, found := sess.Controller.CurrentScenario(); found {
		v := viewOf(s)
		resp.Scenario = &v
	}
	JSON(w, http.StatusOK, resp)
}

// Next draws and returns the next scenario's chat without pacing.
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	tr := &chat.Transcript{}
	draw, accepted := sess.Controller.DrawNext(r.Context(), chat.NewPacedRenderer(tr, config.PacingConfig{}))
	if !accepted {
		Error(w, http.StatusConflict, "turn_ignored")
		return
	}

	resp := nextResponse{
		Scenario:      viewOf(draw.Scenario),
		Tier:          draw.Tier,
		PoolExhausted: draw.PoolExhausted,
		Interrupted:   draw.Interrupted,
		Messages:      tr.Messages(),
		State:         sess.Controller.Snapshot(),
	}
	if draw.PoolExhausted {
		resp.Notice = chat.RestartNotice
	}
	if resp.Messages == nil {
		resp.Messages = []chat.MessagePayload{}
	}
	JSON(w, http.StatusOK, resp)
}

// Choice grades the dispatcher's action for the current scenario.
func (h *SessionHandler) Choice(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, accepted := sess.Controller.Submit(r.Context(), domain.Choice(req.Choice), nil)
	if !accepted {
		Error(w, http.StatusConflict, "turn_ignored")
		return
	}

	rec := domain.NewTurnRecord(sess.PlayerID, sess.ID, result)
	if err := h.repo.RecordTurn(r.Context(), &rec); err != nil {
		slog.Warn("Failed to record turn", "error", err, "session_id", sess.ID)
	}

	JSON(w, http.StatusOK, choiceResponse{
		Result: result,
		Echo:   result.ChoiceLabel,
		State:  sess.Controller.Snapshot(),
	})
}

// End stops and forgets a session.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	playerID := identity.PlayerIDFromContext(r.Context())
	if err := h.reg.Remove(chi.URLParam(r, "id"), playerID); err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// History returns the player's most recent journaled turns.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	playerID := identity.PlayerIDFromContext(r.Context())

	limit := h.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	turns, err := h.repo.ListTurns(ctx, playerID, limit)
	if err != nil {
		slog.Error("Failed to list turns", "error", err, "player_id", playerID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if turns == nil {
		turns = []domain.TurnRecord{}
	}
	JSON(w, http.StatusOK, turns)
}
