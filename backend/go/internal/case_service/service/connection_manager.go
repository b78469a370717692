package service

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSessionNotFound means no live connection is registered for the session.
var ErrSessionNotFound = errors.New("session not found")

const writeWait = 10 * time.Second

// Conn is the part of *websocket.Conn the manager needs.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

type sessionConn struct {
	userID string
	conn   Conn

	writeMu sync.Mutex // gorilla connections allow one concurrent writer
}

// ConnectionManager manages WebSocket connections, one per chat session.
type ConnectionManager struct {
	sessions map[string]*sessionConn
	mu       sync.RWMutex
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		sessions: make(map[string]*sessionConn),
	}
}

// Add registers the connection of a session.
func (m *ConnectionManager) Add(sessionID, userID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &sessionConn{userID: userID, conn: conn}
}

// Remove closes and forgets the connection of a session. It reports whether
// the session was registered.
func (m *ConnectionManager) Remove(sessionID string) bool {
	m.mu.Lock()
	sc, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		sc.conn.Close()
	}
	return ok
}

// Owner returns the user a session belongs to.
func (m *ConnectionManager) Owner(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.sessions[sessionID]
	if !ok {
		return "", false
	}
	return sc.userID, true
}

// NotifySession writes payload as JSON to the session's connection.
func (m *ConnectionManager) NotifySession(sessionID string, payload interface{}) error {
	m.mu.RLock()
	sc, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sc.conn.WriteJSON(payload)
}

// Len returns the number of open sessions.
func (m *ConnectionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every connection and returns their session IDs.
func (m *ConnectionManager) CloseAll() []string {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*sessionConn)
	m.mu.Unlock()

	ids := make([]string, 0, len(sessions))
	for id, sc := range sessions {
		sc.conn.Close()
		ids = append(ids, id)
	}
	return ids
}
