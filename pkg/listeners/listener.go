// Package listeners accepts MQTT transports over TCP, WebSocket and gRPC
// tunnels and hands them to a ConnectionHandler.
package listeners

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/connection"
)

// ErrListenerClosed is returned by Close on a listener that is already closed.
var ErrListenerClosed = errors.New("listener already closed")

// ConnectionHandler handles new transports from listeners.
// HandleConnection must not block the listener for long; it typically
// starts a goroutine per transport.
type ConnectionHandler interface {
	HandleConnection(t connection.Transport)
}

// HandlerFunc adapts a function to ConnectionHandler.
type HandlerFunc func(t connection.Transport)

func (f HandlerFunc) HandleConnection(t connection.Transport) { f(t) }

// Listener is the interface that all transport listeners implement.
type Listener interface {
	// ID returns the unique identifier for this listener.
	ID() string

	// Addr returns the listener's address, or nil before Serve bound it.
	Addr() net.Addr

	// Serve binds the address and hands accepted transports to handler.
	// It blocks until Close is called, and returns nil if Close came first.
	Serve(handler ConnectionHandler) error

	// Close stops the listener and waits for Serve to return.
	Close() error
}

// socket is the bind and close bookkeeping shared by all listeners.
type socket struct {
	id        string
	addr      string
	keepAlive time.Duration
	tls       *tls.Config

	mu     sync.Mutex
	ln     net.Listener
	closed chan struct{}
	wg     sync.WaitGroup
}

func newSocket(id, addr string, tlsConfig *tls.Config, keepAlive time.Duration) socket {
	return socket{
		id:        id,
		addr:      addr,
		keepAlive: keepAlive,
		tls:       tlsConfig,
		closed:    make(chan struct{}),
	}
}

// ID returns the listener ID.
func (s *socket) ID() string {
	return s.id
}

// Addr returns the bound address, or nil before Serve.
func (s *socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *socket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// bind opens the socket and runs attach under the lock that Close takes,
// so whatever attach publishes is visible to Close. It returns a nil
// listener if Close already ran. A caller that got a listener must call
// s.wg.Done when it stops serving.
func (s *socket) bind(attach func(net.Listener)) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: s.keepAlive}
	ln, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		ln.Close()
		return nil, nil
	}
	s.ln = ln
	if attach != nil {
		attach(ln)
	}
	s.wg.Add(1)
	return ln, nil
}

// shutdown marks the socket closed, runs stop under the lock and waits for
// Serve to return.
func (s *socket) shutdown(stop func()) error {
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return ErrListenerClosed
	}
	close(s.closed)
	if s.ln != nil {
		stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
