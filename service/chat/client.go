package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsHandle wraps one gorilla connection. gorilla allows a single concurrent
// writer, so every write goes through mu.
type wsHandle struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSHandle(conn *websocket.Conn, writeTimeout time.Duration) *wsHandle {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsHandle{id: uuid.NewString(), conn: conn, writeTimeout: writeTimeout}
}

func (h *wsHandle) ID() string { return h.id }

func (h *wsHandle) Write(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return websocket.ErrCloseSent
	}
	if err := h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return h.conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *wsHandle) Ping() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return websocket.ErrCloseSent
	}
	return h.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
}

// Close sends a close frame with code and reason, then drops the socket.
// Later calls are no-ops.
func (h *wsHandle) Close(code int, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
	return h.conn.Close()
}
