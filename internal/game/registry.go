package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/random"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown or belongs to
// another player.
var ErrSessionNotFound = errors.New("session not found")

// Session binds a controller to the player that owns it.
type Session struct {
	ID         string
	PlayerID   string
	CreatedAt  time.Time
	Controller *Controller
}

// CleanupCallback is called when a session is removed from the registry.
type CleanupCallback func(sessionID string)

// Registry keeps the live sessions of this process. Sessions are never
// persisted; a restart drops them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	pool     *ScenarioPool
	opts     []Option
	seed     int64
	streams  uint64
	logger   *slog.Logger

	onRemove CleanupCallback
}

// NewRegistry creates a registry whose sessions draw from pool. Each session
// gets its own random stream derived from seed.
func NewRegistry(pool *ScenarioPool, seed int64, opts ...Option) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pool:     pool,
		opts:     opts,
		seed:     seed,
		logger:   slog.Default(),
	}
}

// OnRemove registers a callback run after a session is removed.
func (r *Registry) OnRemove(fn CleanupCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = fn
}

// Create starts a new session in mode for playerID.
func (r *Registry) Create(playerID string, mode domain.Mode) (*Session, error) {
	r.mu.Lock()
	r.streams++
	stream := r.streams
	r.mu.Unlock()

	opts := append([]Option{WithRand(random.Stream(r.seed, stream))}, r.opts...)
	ctrl, err := NewController(r.pool, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Start(mode); err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		CreatedAt:  time.Now(),
		Controller: ctrl,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("Session created", "session_id", s.ID, "player_id", playerID, "mode", mode)
	return s, nil
}

// Get returns the session with id owned by playerID.
func (r *Registry) Get(id, playerID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.PlayerID != playerID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove ends and forgets the session with id owned by playerID.
func (r *Registry) Remove(id, playerID string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.PlayerID != playerID {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	cb := r.onRemove
	r.mu.Unlock()

	s.Controller.End()
	if cb != nil {
		cb(id)
	}
	r.logger.Info("Session removed", "session_id", id, "player_id", playerID)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than ttl. Sessions presenting a
// turn are kept.
func (r *Registry) Sweep(ttl time.Duration, now time.Time) int {
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if now.Sub(s.Controller.LastActive()) <= ttl || s.Controller.Snapshot().IsProcessing {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, s)
	}
	cb := r.onRemove
	r.mu.Unlock()

	for _, s := range expired {
		s.Controller.End()
		if cb != nil {
			cb(s.ID)
		}
		r.logger.Info("Session expired", "session_id", s.ID, "player_id", s.PlayerID)
	}
	return len(expired)
}

// StartSweeper runs a background goroutine that periodically removes idle
// sessions until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				if n := r.Sweep(ttl, now); n > 0 {
					r.logger.Info("Session sweeper cleanup completed", "cleaned", n, "remaining", r.Len())
				}
			case <-ctx.Done():
				r.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
