package pty

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The Agent API is a local-transport surface (unix socket, loopback
	// tcp, or named pipe) reached only by the agent that resolved its own
	// Connector; there is no browser-origin cross-site risk to police.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts *websocket.Conn to the pty.Conn interface, decoding every
// inbound text/binary frame as the ClientFrame envelope.
type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) ReadJSON(v any) error  { return c.conn.ReadJSON(v) }
func (c wsConn) WriteJSON(v any) error { return c.conn.WriteJSON(v) }
func (c wsConn) Close() error          { return c.conn.Close() }

// ServeHTTP upgrades r to a WebSocket and runs one PTY Session for its
// lifetime. Mounted at GET /pty by the Agent API server.
func ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := New(wsConn{conn: conn})
	_ = sess.Run()
}
