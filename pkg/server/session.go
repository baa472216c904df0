package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// deadliner is implemented by transports with read deadlines (net.Conn,
// transport.WebSocket).
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// session is a per-connection hook holding protocol state. It destroys a
// connection whose first packet is not CONNECT or that sends CONNECT twice,
// and refreshes the keep-alive read deadline on every inbound packet.
type session struct {
	d         deadliner
	connected atomic.Bool
	timeout   atomic.Int64 // 1.5x keep-alive
	clientID  atomic.Value // string
}

func newSession(t connection.Transport) *session {
	s := &session{}
	s.d, _ = t.(deadliner)
	s.clientID.Store("")
	return s
}

func (s *session) ID() string { return "server.session" }

func (s *session) OnPacketReceived(_ context.Context, c *connection.Conn, p packet.Packet) {
	if pkt, ok := p.(*packet.Connect); ok {
		if !s.connected.CompareAndSwap(false, true) {
			// A second CONNECT is a protocol violation.
			c.Destroy()
			return
		}
		s.timeout.Store(int64(time.Duration(pkt.KeepAlive) * time.Second * 3 / 2))
	} else if !s.connected.Load() {
		// First packet must be CONNECT
		c.Destroy()
		return
	}
	s.deadline(time.Duration(s.timeout.Load()))
}

func (s *session) OnPacketSent(context.Context, *connection.Conn, packet.Packet, int) {}

// deadline sets the read deadline d from now, or clears it for d == 0.
func (s *session) deadline(d time.Duration) {
	if s.d == nil {
		return
	}
	if d <= 0 {
		s.d.SetReadDeadline(time.Time{})
		return
	}
	s.d.SetReadDeadline(time.Now().Add(d))
}

func (s *session) ClientID() string {
	return s.clientID.Load().(string)
}
