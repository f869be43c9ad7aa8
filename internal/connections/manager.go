// Package connections tracks the live run-stream sockets so shutdown can
// close them instead of abandoning clients mid-stream.
package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const closeWriteWait = 5 * time.Second

// Manager registers active WebSocket sessions.
type Manager struct {
	conns sync.Map
}

func NewManager() *Manager {
	return &Manager{}
}

// Add registers a session socket.
func (m *Manager) Add(conn *websocket.Conn) {
	m.conns.Store(conn, struct{}{})
}

// Remove deregisters a session socket.
func (m *Manager) Remove(conn *websocket.Conn) {
	m.conns.Delete(conn)
}

// Has reports whether the socket is currently registered.
func (m *Manager) Has(conn *websocket.Conn) bool {
	_, ok := m.conns.Load(conn)
	return ok
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	count := 0
	m.conns.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// CloseAll sends a close frame to every registered session and closes the
// sockets. Used on shutdown.
func (m *Manager) CloseAll(reason string) {
	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	m.conns.Range(func(key, _ any) bool {
		conn := key.(*websocket.Conn)
		deadline := time.Now().Add(closeWriteWait)
		if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
			log.Debug().Err(err).Msg("Failed to send close frame")
		}
		conn.Close()
		m.conns.Delete(conn)
		return true
	})
}
