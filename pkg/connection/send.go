package connection

import (
	"context"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Connect sends a CONNECT and switches the connection to its protocol
// version.
func (c *Conn) Connect(ctx context.Context, p *packet.Connect) error { return c.Send(ctx, p) }

// Connack sends a CONNACK.
func (c *Conn) Connack(ctx context.Context, p *packet.Connack) error { return c.Send(ctx, p) }

// Publish sends a PUBLISH.
func (c *Conn) Publish(ctx context.Context, p *packet.Publish) error { return c.Send(ctx, p) }

// Puback sends a PUBACK.
func (c *Conn) Puback(ctx context.Context, p *packet.Puback) error { return c.Send(ctx, p) }

// Pubrec sends a PUBREC.
func (c *Conn) Pubrec(ctx context.Context, p *packet.Pubrec) error { return c.Send(ctx, p) }

// Pubrel sends a PUBREL.
func (c *Conn) Pubrel(ctx context.Context, p *packet.Pubrel) error { return c.Send(ctx, p) }

// Pubcomp sends a PUBCOMP.
func (c *Conn) Pubcomp(ctx context.Context, p *packet.Pubcomp) error { return c.Send(ctx, p) }

// Subscribe sends a SUBSCRIBE.
func (c *Conn) Subscribe(ctx context.Context, p *packet.Subscribe) error { return c.Send(ctx, p) }

// Suback sends a SUBACK.
func (c *Conn) Suback(ctx context.Context, p *packet.Suback) error { return c.Send(ctx, p) }

// Unsubscribe sends an UNSUBSCRIBE.
func (c *Conn) Unsubscribe(ctx context.Context, p *packet.Unsubscribe) error { return c.Send(ctx, p) }

// Unsuback sends an UNSUBACK.
func (c *Conn) Unsuback(ctx context.Context, p *packet.Unsuback) error { return c.Send(ctx, p) }

// Pingreq sends a PINGREQ.
func (c *Conn) Pingreq(ctx context.Context) error { return c.Send(ctx, &packet.Pingreq{}) }

// Pingresp sends a PINGRESP.
func (c *Conn) Pingresp(ctx context.Context) error { return c.Send(ctx, &packet.Pingresp{}) }

// Disconnect sends a DISCONNECT. A nil p sends the empty form.
func (c *Conn) Disconnect(ctx context.Context, p *packet.Disconnect) error {
	if p == nil {
		p = &packet.Disconnect{}
	}
	return c.Send(ctx, p)
}

// Auth sends an AUTH. It fails to encode unless the connection runs MQTT 5.0.
func (c *Conn) Auth(ctx context.Context, p *packet.Auth) error { return c.Send(ctx, p) }
