// Package transport adapts message-oriented connections to the byte
// stream a connection.Conn runs over.
package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol negotiated for MQTT.
const Subprotocol = "mqtt"

// WebSocket presents a WebSocket connection as a net.Conn. MQTT over
// WebSocket carries the packet stream in binary messages whose boundaries
// need not match packet boundaries, so reads flatten messages into one
// stream. Text messages are skipped.
type WebSocket struct {
	conn       *websocket.Conn
	remoteAddr string

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

// NewWebSocket wraps an established WebSocket connection. remoteAddr
// overrides the peer address reported by RemoteAddr when non-empty, e.g.
// with the client address of an upgraded HTTP request.
func NewWebSocket(conn *websocket.Conn, remoteAddr string) *WebSocket {
	if remoteAddr == "" {
		remoteAddr = conn.RemoteAddr().String()
	}
	return &WebSocket{conn: conn, remoteAddr: remoteAddr}
}

// DialWebSocket opens a WebSocket connection to url, negotiating the mqtt
// subprotocol.
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{Subprotocol},
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, ""), nil
}

// NewUpgrader returns an upgrader offering the mqtt subprotocol. A nil
// checkOrigin allows all origins.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin:  checkOrigin,
	}
}

// WebSocketHandler upgrades each request and hands the resulting stream
// to handle. handle may block; the HTTP handler returns when it does.
func WebSocketHandler(upgrader *websocket.Upgrader, handle func(*WebSocket)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(NewWebSocket(ws, r.RemoteAddr))
	})
}

func (c *WebSocket) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (c *WebSocket) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal closure frame when possible and closes the socket.
func (c *WebSocket) Close() error {
	// WriteControl may run concurrently with a blocked Write.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *WebSocket) RemoteAddr() net.Addr {
	return &wsAddr{addr: c.remoteAddr}
}

func (c *WebSocket) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *WebSocket) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *WebSocket) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *WebSocket) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Subprotocol returns the negotiated subprotocol.
func (c *WebSocket) Subprotocol() string {
	return c.conn.Subprotocol()
}

// wsAddr implements net.Addr for WebSocket peers.
type wsAddr struct {
	addr string
}

func (a *wsAddr) Network() string { return "websocket" }
func (a *wsAddr) String() string  { return a.addr }
