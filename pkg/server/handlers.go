package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

const maxClientIDLen = 256 // Reasonable limit, the protocol allows up to 65535

var clientSeq atomic.Uint64

// install registers the default acknowledgement handlers on c.
func (s *Server) install(c *connection.Conn, sess *session) {
	c.OnConnect(func(ctx context.Context, p *packet.Connect) {
		s.handleConnect(ctx, c, sess, p)
	})

	c.OnPublish(func(ctx context.Context, p *packet.Publish) {
		if s.config.OnPublish != nil {
			s.config.OnPublish(ctx, c, p)
		}
		switch p.QoS {
		case packet.QoS1:
			s.reply(ctx, c, &packet.Puback{PacketID: p.PacketID})
		case packet.QoS2:
			s.reply(ctx, c, &packet.Pubrec{PacketID: p.PacketID})
		}
	})

	c.OnPubrel(func(ctx context.Context, p *packet.Pubrel) {
		s.reply(ctx, c, &packet.Pubcomp{PacketID: p.PacketID})
	})

	c.OnSubscribe(func(ctx context.Context, p *packet.Subscribe) {
		codes := make([]packet.ReasonCode, len(p.Subscriptions))
		for i, sub := range p.Subscriptions {
			codes[i] = packet.ReasonCode(min(sub.QoS, s.config.MaxQoS))
		}
		s.reply(ctx, c, &packet.Suback{PacketID: p.PacketID, ReasonCodes: codes})
	})

	c.OnUnsubscribe(func(ctx context.Context, p *packet.Unsubscribe) {
		ack := &packet.Unsuback{PacketID: p.PacketID}
		if c.Version() >= packet.Version5 {
			ack.ReasonCodes = make([]packet.ReasonCode, len(p.Topics))
		}
		s.reply(ctx, c, ack)
	})

	c.OnPingreq(func(ctx context.Context, _ *packet.Pingreq) {
		s.reply(ctx, c, &packet.Pingresp{})
	})

	c.OnDisconnect(func(ctx context.Context, p *packet.Disconnect) {
		s.log.DebugContext(ctx, "client disconnected",
			"conn_id", c.ID(),
			"client_id", sess.ClientID(),
			"reason", p.ReasonCode.String(),
		)
		c.Destroy()
	})
}

// handleConnect accepts the client, assigning a client ID when it sent none.
func (s *Server) handleConnect(ctx context.Context, c *connection.Conn, sess *session, p *packet.Connect) {
	v := c.Version()
	clientID := p.ClientID

	// Validate client ID length (protect against DoS)
	if len(clientID) > maxClientIDLen {
		s.refuse(ctx, c, v, packet.ConnackIdentifierRejected, packet.ReasonClientIDNotValid)
		return
	}

	ack := &packet.Connack{}
	if clientID == "" {
		if !p.CleanStart && v < packet.Version5 {
			// v3.1.1: Empty client ID requires clean session
			s.refuse(ctx, c, v, packet.ConnackIdentifierRejected, packet.ReasonClientIDNotValid)
			return
		}
		clientID = generateClientID()
		if v >= packet.Version5 {
			ack.Properties = &packet.Properties{AssignedClientID: &clientID}
		}
	}
	sess.clientID.Store(clientID)

	if err := c.Connack(ctx, ack); err != nil {
		s.log.DebugContext(ctx, "connack failed", "conn_id", c.ID(), "error", err)
		return
	}
	s.log.InfoContext(ctx, "client connected",
		"conn_id", c.ID(),
		"client_id", clientID,
		"protocol", v,
		"keep_alive", p.KeepAlive,
	)
}

// refuse sends a refusing CONNACK with the code for the connection's
// version and destroys the connection.
func (s *Server) refuse(ctx context.Context, c *connection.Conn, v packet.Version, v3, v5 packet.ReasonCode) {
	code := v3
	if v >= packet.Version5 {
		code = v5
	}
	s.log.InfoContext(ctx, "client refused", "conn_id", c.ID(), "reason", code.String())
	_ = c.Connack(ctx, &packet.Connack{ReasonCode: code})
	c.Destroy()
}

func (s *Server) reply(ctx context.Context, c *connection.Conn, p packet.Packet) {
	if err := c.Send(ctx, p); err != nil {
		s.log.DebugContext(ctx, "reply failed",
			"conn_id", c.ID(),
			"type", p.Type().String(),
			"error", err,
		)
	}
}

// generateClientID generates a unique client ID.
func generateClientID() string {
	return fmt.Sprintf("auto-%d-%d", time.Now().UnixNano(), clientSeq.Add(1))
}
