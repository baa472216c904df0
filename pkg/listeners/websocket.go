package listeners

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bromq-dev/mqttwire/pkg/transport"
)

// WebSocketConfig holds configuration for WebSocket listeners.
type WebSocketConfig struct {
	// TLSConfig enables TLS if set.
	TLSConfig *tls.Config

	// Path is the URL path to listen on. Default: "/mqtt".
	Path string

	// CheckOrigin is a function to validate the Origin header.
	// If nil, all origins are allowed.
	CheckOrigin func(r *http.Request) bool
}

// WebSocket accepts MQTT over WebSocket, either on its own HTTP server
// (Serve) or mounted on an existing router (Handler).
type WebSocket struct {
	socket
	path     string
	upgrader *websocket.Upgrader
	server   *http.Server
}

// NewWebSocket creates a new WebSocket listener. addr is only used by Serve.
func NewWebSocket(id, addr string, config *WebSocketConfig) *WebSocket {
	if config == nil {
		config = &WebSocketConfig{}
	}
	path := config.Path
	if path == "" {
		path = "/mqtt"
	}
	return &WebSocket{
		socket:   newSocket(id, addr, config.TLSConfig, 0),
		path:     path,
		upgrader: transport.NewUpgrader(config.CheckOrigin),
	}
}

// Path returns the URL path the endpoint is served on.
func (w *WebSocket) Path() string {
	return w.path
}

// Serve runs an HTTP server that upgrades requests on Path.
func (w *WebSocket) Serve(handler ConnectionHandler) error {
	mux := http.NewServeMux()
	mux.Handle(w.path, w.Handler(handler))

	var server *http.Server
	ln, err := w.bind(func(net.Listener) {
		server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		w.server = server
	})
	if err != nil || ln == nil {
		return err
	}
	defer w.wg.Done()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the upgrade handler. Once the listener is closed it
// answers 503 instead of upgrading.
func (w *WebSocket) Handler(handler ConnectionHandler) http.Handler {
	upgrade := transport.WebSocketHandler(w.upgrader, func(ws *transport.WebSocket) {
		handler.HandleConnection(ws)
	})
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if w.isClosed() {
			http.Error(rw, "server closing", http.StatusServiceUnavailable)
			return
		}
		upgrade.ServeHTTP(rw, r)
	})
}

// Close stops the HTTP server started by Serve, if any, and makes Handler
// refuse further upgrades.
func (w *WebSocket) Close() error {
	return w.shutdown(func() { w.server.Close() })
}
