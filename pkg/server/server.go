// Package server runs an acknowledging MQTT endpoint on top of the
// connection package. It answers the protocol handshakes of every packet
// flow but does not route messages; inbound publishes are handed to an
// optional callback.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/listeners"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

var (
	// ErrServerClosed is returned by Serve and AddListener after Shutdown.
	ErrServerClosed = errors.New("server closed")

	// ErrServing is returned by AddListener once Serve has been called.
	ErrServing = errors.New("server already serving")

	errTooManyConnections = errors.New("max connections reached")
)

// PublishFunc observes an inbound PUBLISH before it is acknowledged.
type PublishFunc func(ctx context.Context, c *connection.Conn, p *packet.Publish)

// Config holds server configuration.
type Config struct {
	// MaxConnections limits the number of concurrent connections (0 = unlimited).
	MaxConnections int

	// ConnectTimeout is the time allowed for a client to send CONNECT after
	// connecting. It only applies to transports with read deadlines.
	ConnectTimeout time.Duration

	// MaxPacketSize limits the size of inbound packets (0 = protocol max ~256MB).
	MaxPacketSize uint32

	// MaxQoS caps the QoS granted in SUBACK.
	MaxQoS packet.QoS

	// WriteQueueSize is the per-connection outbound queue length.
	WriteQueueSize int

	// InternStrings deduplicates decoded topic and client ID strings.
	InternStrings bool

	// Hooks are attached to every connection, after the server's own hook.
	Hooks []connection.Hook

	// OnPublish, if set, observes inbound publishes.
	OnPublish PublishFunc

	// Logger for server events. If nil, uses slog.Default().
	Logger *slog.Logger

	// Tracer for connection spans. If nil, the global provider is used.
	Tracer trace.Tracer
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConnections: 0, // Unlimited
		ConnectTimeout: 10 * time.Second,
		MaxPacketSize:  0, // Protocol max
		MaxQoS:         packet.QoS2,
		WriteQueueSize: 256,
	}
}

// Server accepts transports from listeners and serves each one as an MQTT
// connection with default acknowledgements.
type Server struct {
	config *Config
	log    *slog.Logger

	mu        sync.Mutex
	conns     map[string]*connection.Conn
	listeners []listeners.Listener
	serving   bool

	closing atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a server. A nil config selects DefaultConfig.
func New(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: config,
		log:    config.Logger.With("component", "server"),
		conns:  make(map[string]*connection.Conn),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddListener registers a listener to be started by Serve.
func (s *Server) AddListener(l listeners.Listener) error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving {
		return ErrServing
	}
	for _, existing := range s.listeners {
		if existing.ID() == l.ID() {
			return fmt.Errorf("listener %q already added", l.ID())
		}
	}
	s.listeners = append(s.listeners, l)
	return nil
}

// Serve starts every listener and blocks until all of them stop. It
// returns the first listener error.
func (s *Server) Serve() error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return ErrServing
	}
	s.serving = true
	ls := append([]listeners.Listener(nil), s.listeners...)
	s.mu.Unlock()

	var g errgroup.Group
	for _, l := range ls {
		g.Go(func() error {
			s.log.Info("listener started", "id", l.ID())
			if err := l.Serve(s); err != nil {
				return fmt.Errorf("listener %s: %w", l.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// HandleConnection serves t in a new goroutine. It implements
// listeners.ConnectionHandler.
func (s *Server) HandleConnection(t connection.Transport) {
	if s.closing.Load() {
		t.Close()
		return
	}

	sess := newSession(t)
	cfg := connection.DefaultConfig()
	cfg.MaxPacketSize = int(s.config.MaxPacketSize)
	cfg.InternStrings = s.config.InternStrings
	cfg.WriteQueueSize = s.config.WriteQueueSize
	cfg.Logger = s.config.Logger
	cfg.Tracer = s.config.Tracer
	cfg.Hooks = append([]connection.Hook{sess}, s.config.Hooks...)
	c := connection.New(t, cfg)

	if err := s.register(c); err != nil {
		s.log.Warn("connection refused", "conn_id", c.ID(), "error", err)
		c.Destroy()
		return
	}
	s.install(c, sess)
	if s.config.ConnectTimeout > 0 {
		sess.deadline(s.config.ConnectTimeout)
	}

	go func() {
		defer s.wg.Done()
		defer s.unregister(c)
		if err := c.Serve(s.ctx); err != nil {
			s.log.Debug("connection ended", "conn_id", c.ID(), "error", err)
		}
	}()
}

// register adds c to the connection set and the wait group. Shutdown marks
// the server closing before it snapshots the set under s.mu, so a
// connection either lands in that snapshot or is refused here.
func (s *Server) register(c *connection.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return ErrServerClosed
	}
	if s.config.MaxConnections > 0 && len(s.conns) >= s.config.MaxConnections {
		return errTooManyConnections
	}
	s.conns[c.ID()] = c
	s.wg.Add(1)
	return nil
}

func (s *Server) unregister(c *connection.Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
}

// Shutdown gracefully shuts down the server. MQTT 5.0 clients receive a
// DISCONNECT with reason 0x8B first. If ctx ends before every connection
// finished, the remaining ones are destroyed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closing.Swap(true) {
		return ErrServerClosed
	}
	defer s.cancel()

	s.mu.Lock()
	ls := s.listeners
	conns := make([]*connection.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, l := range ls {
		if err := l.Close(); err != nil {
			s.log.Warn("listener close failed", "id", l.ID(), "error", err)
		}
	}

	// Disconnect all clients
	for _, c := range conns {
		if c.Version() >= packet.Version5 {
			c.SendAsync(&packet.Disconnect{ReasonCode: packet.ReasonServerShuttingDown}, func(error) {
				c.Destroy()
			})
		} else {
			c.Destroy()
		}
	}

	// Wait for all goroutines
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Connections returns the number of connections being served.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
