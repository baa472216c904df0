package connection

import (
	"context"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Handle registers fn for inbound packets of type t. Handlers of one type
// run in registration order.
func (c *Conn) Handle(t packet.Type, fn HandlerFunc) {
	if !t.Valid() || fn == nil {
		return
	}
	c.hmu.Lock()
	c.handlers[t] = append(c.handlers[t], fn)
	c.hmu.Unlock()
}

// OnError registers fn for decode and transport errors. Error handlers run
// before the connection closes.
func (c *Conn) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	c.hmu.Lock()
	c.onError = append(c.onError, fn)
	c.hmu.Unlock()
}

// OnClose registers fn to run once when Serve returns, with the close cause.
func (c *Conn) OnClose(fn func(error)) {
	if fn == nil {
		return
	}
	c.hmu.Lock()
	c.onClose = append(c.onClose, fn)
	c.hmu.Unlock()
}

func handle[T packet.Packet](c *Conn, t packet.Type, fn func(context.Context, T)) {
	if fn == nil {
		return
	}
	c.Handle(t, func(ctx context.Context, p packet.Packet) {
		fn(ctx, p.(T))
	})
}

// OnConnect registers a CONNECT handler. It runs after the connection has
// switched to the version the CONNECT announced.
func (c *Conn) OnConnect(fn func(ctx context.Context, p *packet.Connect)) {
	handle(c, packet.TypeConnect, fn)
}

// OnConnack registers a CONNACK handler.
func (c *Conn) OnConnack(fn func(ctx context.Context, p *packet.Connack)) {
	handle(c, packet.TypeConnack, fn)
}

// OnPublish registers a PUBLISH handler.
func (c *Conn) OnPublish(fn func(ctx context.Context, p *packet.Publish)) {
	handle(c, packet.TypePublish, fn)
}

// OnPuback registers a PUBACK handler.
func (c *Conn) OnPuback(fn func(ctx context.Context, p *packet.Puback)) {
	handle(c, packet.TypePuback, fn)
}

// OnPubrec registers a PUBREC handler.
func (c *Conn) OnPubrec(fn func(ctx context.Context, p *packet.Pubrec)) {
	handle(c, packet.TypePubrec, fn)
}

// OnPubrel registers a PUBREL handler.
func (c *Conn) OnPubrel(fn func(ctx context.Context, p *packet.Pubrel)) {
	handle(c, packet.TypePubrel, fn)
}

// OnPubcomp registers a PUBCOMP handler.
func (c *Conn) OnPubcomp(fn func(ctx context.Context, p *packet.Pubcomp)) {
	handle(c, packet.TypePubcomp, fn)
}

// OnSubscribe registers a SUBSCRIBE handler.
func (c *Conn) OnSubscribe(fn func(ctx context.Context, p *packet.Subscribe)) {
	handle(c, packet.TypeSubscribe, fn)
}

// OnSuback registers a SUBACK handler.
func (c *Conn) OnSuback(fn func(ctx context.Context, p *packet.Suback)) {
	handle(c, packet.TypeSuback, fn)
}

// OnUnsubscribe registers an UNSUBSCRIBE handler.
func (c *Conn) OnUnsubscribe(fn func(ctx context.Context, p *packet.Unsubscribe)) {
	handle(c, packet.TypeUnsubscribe, fn)
}

// OnUnsuback registers an UNSUBACK handler.
func (c *Conn) OnUnsuback(fn func(ctx context.Context, p *packet.Unsuback)) {
	handle(c, packet.TypeUnsuback, fn)
}

// OnPingreq registers a PINGREQ handler.
func (c *Conn) OnPingreq(fn func(ctx context.Context, p *packet.Pingreq)) {
	handle(c, packet.TypePingreq, fn)
}

// OnPingresp registers a PINGRESP handler.
func (c *Conn) OnPingresp(fn func(ctx context.Context, p *packet.Pingresp)) {
	handle(c, packet.TypePingresp, fn)
}

// OnDisconnect registers a DISCONNECT handler.
func (c *Conn) OnDisconnect(fn func(ctx context.Context, p *packet.Disconnect)) {
	handle(c, packet.TypeDisconnect, fn)
}

// OnAuth registers an AUTH handler. AUTH is only decoded under MQTT 5.0.
func (c *Conn) OnAuth(fn func(ctx context.Context, p *packet.Auth)) {
	handle(c, packet.TypeAuth, fn)
}
