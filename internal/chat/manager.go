package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Closer is the part of a websocket connection the manager needs.
type Closer interface {
	Close(code websocket.StatusCode, reason string) error
}

// ConnManager tracks the live websocket attached to each game session. A
// session has at most one connection; a newer one replaces the old.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]Closer
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{active: make(map[string]Closer)}
}

// GetActive returns the connection attached to sessionID.
func (m *ConnManager) GetActive(sessionID string) Closer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Register attaches conn to sessionID, closing any previous connection.
func (m *ConnManager) Register(sessionID string, conn Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[sessionID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "session opened elsewhere")
	}
	m.active[sessionID] = conn
	slog.Info("Chat connection registered", "session_id", sessionID)
}

// Unregister detaches conn if it is still the session's connection.
func (m *ConnManager) Unregister(sessionID string, conn Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[sessionID]; ok && current == conn {
		delete(m.active, sessionID)
		slog.Info("Chat connection unregistered", "session_id", sessionID)
	}
}

// CloseSession closes and forgets the connection attached to sessionID.
func (m *ConnManager) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.active[sessionID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	delete(m.active, sessionID)
	slog.Info("Chat connection closed", "session_id", sessionID)
}

// Len returns the number of attached connections.
func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
