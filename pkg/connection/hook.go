package connection

import (
	"context"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Direction tells whether a frame was read from or written to the transport.
type Direction uint8

const (
	Inbound Direction = iota + 1
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "in"
	case Outbound:
		return "out"
	}
	return "unknown"
}

// Hook observes a connection. Implementations opt into events by also
// implementing one or more of the interfaces below.
//
// Hook methods are called synchronously: inbound events on the read
// goroutine, outbound events on the write goroutine. Long-running work
// belongs in a goroutine of the hook's own.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string
}

// LifecycleHook observes a connection starting to serve and closing.
type LifecycleHook interface {
	Hook

	// OnOpen is called when Serve starts.
	OnOpen(ctx context.Context, c *Conn)

	// OnClose is called once after the connection closed. err is the close
	// cause, nil for a clean shutdown.
	OnClose(ctx context.Context, c *Conn, err error)
}

// PacketHook observes decoded and written packets.
type PacketHook interface {
	Hook

	// OnPacketReceived is called before the packet's handlers run.
	OnPacketReceived(ctx context.Context, c *Conn, p packet.Packet)

	// OnPacketSent is called after size bytes were accepted by the transport.
	OnPacketSent(ctx context.Context, c *Conn, p packet.Packet, size int)
}

// FrameHook observes raw frames. frame is only valid during the call.
type FrameHook interface {
	Hook

	OnFrame(ctx context.Context, c *Conn, dir Direction, v packet.Version, frame []byte)
}

// ErrorHook observes decode and transport errors.
type ErrorHook interface {
	Hook

	OnError(ctx context.Context, c *Conn, err error)
}

// hookSet sorts configured hooks by the interfaces they implement.
type hookSet struct {
	lifecycle []LifecycleHook
	packets   []PacketHook
	frames    []FrameHook
	errors    []ErrorHook
}

func newHookSet(hooks []Hook) hookSet {
	var hs hookSet
	for _, h := range hooks {
		if lh, ok := h.(LifecycleHook); ok {
			hs.lifecycle = append(hs.lifecycle, lh)
		}
		if ph, ok := h.(PacketHook); ok {
			hs.packets = append(hs.packets, ph)
		}
		if fh, ok := h.(FrameHook); ok {
			hs.frames = append(hs.frames, fh)
		}
		if eh, ok := h.(ErrorHook); ok {
			hs.errors = append(hs.errors, eh)
		}
	}
	return hs
}
