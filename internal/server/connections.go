package server

import (
	"sync"

	"github.com/coder/websocket"
)

// SessionContext is the identity/room pair bound to a connection at admission
// time. Disconnect handling resolves it from the handle rather than
// re-deriving it, so a torn-down room cannot orphan the mapping.
type SessionContext struct {
	Identity string
	RoomID   int
}

type ConnectionManager struct {
	connections map[string]*websocket.Conn   // connectionID → socket
	sessions    map[string]SessionContext    // connectionID → session context
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		sessions:    make(map[string]SessionContext),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
	delete(cm.sessions, id)
}

// BindSession attaches a session context to an admitted connection.
func (cm *ConnectionManager) BindSession(connectionID string, session SessionContext) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.sessions[connectionID] = session
}

// GetSession returns the session context bound at connect time, if any.
func (cm *ConnectionManager) GetSession(connectionID string) (SessionContext, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	session, exists := cm.sessions[connectionID]
	return session, exists
}

// GetConnection returns websocket for connectionID.
func (cm *ConnectionManager) GetConnection(connectionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[connectionID]
}

// CloseConnection force-closes the socket behind connectionID. Missing or
// already-closed connections are ignored; the peer is assumed gone.
func (cm *ConnectionManager) CloseConnection(connectionID string, code websocket.StatusCode, reason string) {
	conn := cm.GetConnection(connectionID)
	if conn == nil {
		return
	}
	_ = conn.Close(code, reason)
}
