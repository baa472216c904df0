package listeners

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// TCPConfig holds configuration for TCP listeners.
type TCPConfig struct {
	// TLSConfig enables TLS if set.
	TLSConfig *tls.Config

	// KeepAlive is the TCP keep-alive period of accepted sockets.
	// Zero selects the Go default; negative disables keep-alives.
	KeepAlive time.Duration

	// Logger receives accept errors (default: slog.Default()).
	Logger *slog.Logger
}

// TCP accepts MQTT over plain TCP or TLS.
type TCP struct {
	socket
	log *slog.Logger
}

// NewTCP creates a new TCP listener.
// Use config.TLSConfig to enable TLS.
func NewTCP(id, addr string, config *TCPConfig) *TCP {
	if config == nil {
		config = &TCPConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TCP{
		socket: newSocket(id, addr, config.TLSConfig, config.KeepAlive),
		log:    logger.With("listener", id),
	}
}

// Serve accepts connections until Close. Accept errors other than the one
// caused by Close are retried with a capped exponential backoff.
func (t *TCP) Serve(handler ConnectionHandler) error {
	ln, err := t.bind(nil)
	if err != nil || ln == nil {
		return err
	}
	defer t.wg.Done()

	const maxBackoff = time.Second
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.isClosed() {
				return nil
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), maxBackoff)
			t.log.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		handler.HandleConnection(conn)
	}
}

// Close stops accepting. Connections already handed out stay open.
func (t *TCP) Close() error {
	return t.shutdown(func() { t.ln.Close() })
}
