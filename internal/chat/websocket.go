package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/config"
	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/game"
	"github.com/ashureev/dispatch-trainer/internal/identity"
	"github.com/ashureev/dispatch-trainer/internal/store"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// WebSocketHandler plays game sessions over a websocket.
type WebSocketHandler struct {
	reg            *game.Registry
	conns          *ConnManager
	repo           store.Repository
	pacing         config.PacingConfig
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(reg *game.Registry, conns *ConnManager, repo store.Repository, pacing config.PacingConfig, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		reg:            reg,
		conns:          conns,
		repo:           repo,
		pacing:         pacing,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// clientMessage is a client-to-server message.
type clientMessage struct {
	Type   string `json:"type"`
	Choice string `json:"choice,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// wsEmitter serializes event writes to one connection. Writes use their own
// timeout because a canceled write context closes the connection.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return e.conn.Write(writeCtx, websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID := identity.PlayerIDFromContext(r.Context())
	sessionID := r.URL.Query().Get("session")
	slog.Info("WebSocket connection request", "player_id", playerID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sess, err := h.reg.Get(sessionID, playerID)
	if err != nil {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "player_id", playerID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.conns.Register(sess.ID, ws)
	defer h.conns.Unregister(sess.ID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	emit := &wsEmitter{conn: ws}
	p := &player{
		h:        h,
		sess:     sess,
		emit:     emit,
		renderer: NewPacedRenderer(emit, h.pacing),
	}
	defer p.wait()

	p.sendState(ctx)
	p.readLoop(ctx, ws)
	slog.Info("Chat session ended", "session_id", sess.ID, "player_id", playerID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

// player drives one connection's turns. Turns run in their own goroutine so
// the read loop can still accept an exit while a chat is being presented.
type player struct {
	h        *WebSocketHandler
	sess     *game.Session
	emit     *wsEmitter
	renderer *PacedRenderer

	mu         sync.Mutex
	turnCtx    context.Context
	cancelTurn context.CancelFunc
	wg         sync.WaitGroup
}

func (p *player) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", p.sess.ID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "session_id", p.sess.ID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.sendError(ctx, "malformed_message")
			continue
		}
		p.dispatch(ctx, msg)
	}
}

func (p *player) dispatch(ctx context.Context, msg clientMessage) {
	ctrl := p.sess.Controller
	switch msg.Type {
	case "next":
		p.spawn(ctx, func(turnCtx context.Context) {
			draw, ok := ctrl.DrawNext(turnCtx, p.renderer)
			if !ok {
				p.sendError(ctx, "turn_ignored")
				return
			}
			p.send(ctx, Event{Type: EventReady, ScenarioID: draw.Scenario.ID, Interrupted: draw.Interrupted})
		})
	case "choice":
		choice := domain.Choice(msg.Choice)
		p.spawn(ctx, func(turnCtx context.Context) {
			result, ok := ctrl.Submit(turnCtx, choice, p.renderer)
			if !ok {
				p.sendError(ctx, "turn_ignored")
				return
			}
			p.h.journal(p.sess, result)
		})
	case "start":
		mode, err := domain.ParseMode(msg.Mode)
		if err != nil {
			p.sendError(ctx, "invalid_mode")
			return
		}
		p.stopTurn()
		ctrl.End()
		if err := ctrl.Start(mode); err != nil {
			p.sendError(ctx, err.Error())
			return
		}
		p.sendState(ctx)
	case "exit":
		p.stopTurn()
		ctrl.End()
		p.sendState(ctx)
	case "ping":
		p.send(ctx, Event{Type: EventPong})
	default:
		p.sendError(ctx, "unknown_message_type")
	}
}

// spawn runs fn in the background under the current turn context, which
// stays shared until stopTurn cancels it.
func (p *player) spawn(ctx context.Context, fn func(context.Context)) {
	p.mu.Lock()
	if p.turnCtx == nil {
		p.turnCtx, p.cancelTurn = context.WithCancel(ctx)
	}
	turnCtx := p.turnCtx
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(turnCtx)
	}()
}

func (p *player) stopTurn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelTurn != nil {
		p.cancelTurn()
	}
	p.turnCtx, p.cancelTurn = nil, nil
}

func (p *player) wait() {
	p.stopTurn()
	p.wg.Wait()
}

func (p *player) send(ctx context.Context, ev Event) {
	if err := p.emit.Emit(ctx, ev); err != nil && ctx.Err() == nil {
		slog.Debug("Failed to send event", "type", ev.Type, "error", err, "session_id", p.sess.ID)
	}
}

func (p *player) sendError(ctx context.Context, code string) {
	p.send(ctx, Event{Type: EventError, Error: code})
}

func (p *player) sendState(ctx context.Context) {
	st := p.sess.Controller.Snapshot()
	p.send(ctx, Event{Type: EventState, State: &st})
}

func (h *WebSocketHandler) journal(sess *game.Session, result domain.TurnResult) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	rec := domain.NewTurnRecord(sess.PlayerID, sess.ID, result)
	if err := h.repo.RecordTurn(ctx, &rec); err != nil {
		slog.Warn("Failed to record turn", "error", err, "session_id", sess.ID)
	}
}
