package packet

import (
	"fmt"

	"github.com/bromq-dev/mqttwire/pkg/topic"
)

// Packet is implemented by the fifteen MQTT control packet types. The set is
// closed: only types in this package satisfy it.
type Packet interface {
	// Type returns the packet type.
	Type() Type

	// RemainingLength returns the remaining length observed when the packet
	// was decoded, or 0 for packets built in memory.
	RemainingLength() int

	fixedFlags() byte
	appendBody(b []byte, v Version) ([]byte, error)
	decodeBody(d *decoder, flags byte, v Version) error
	setRemainingLength(n int)
}

// Header carries the remaining length a packet was decoded with. The encoder
// always computes the length from the body. For 5.0 acknowledgments,
// DISCONNECT and AUTH the decoded length also tells the encoder to keep an
// explicit success reason code, so the packet re-encodes in the same form.
type Header struct {
	Length int
}

// RemainingLength returns the decoded remaining length.
func (h *Header) RemainingLength() int { return h.Length }

func (h *Header) setRemainingLength(n int) { h.Length = n }

// Will represents an MQTT Will Message configuration.
type Will struct {
	Topic      string
	Payload    []byte
	QoS        QoS
	Retain     bool
	Properties *Properties // MQTT 5.0 only
}

// New returns an empty packet of type t, or nil if t is not a control packet type.
func New(t Type) Packet {
	switch t {
	case TypeConnect:
		return &Connect{}
	case TypeConnack:
		return &Connack{}
	case TypePublish:
		return &Publish{}
	case TypePuback:
		return &Puback{}
	case TypePubrec:
		return &Pubrec{}
	case TypePubrel:
		return &Pubrel{}
	case TypePubcomp:
		return &Pubcomp{}
	case TypeSubscribe:
		return &Subscribe{}
	case TypeSuback:
		return &Suback{}
	case TypeUnsubscribe:
		return &Unsubscribe{}
	case TypeUnsuback:
		return &Unsuback{}
	case TypePingreq:
		return &Pingreq{}
	case TypePingresp:
		return &Pingresp{}
	case TypeDisconnect:
		return &Disconnect{}
	case TypeAuth:
		return &Auth{}
	}
	return nil
}

// PacketID returns the packet identifier of p, or 0 if p carries none.
func PacketID(p Packet) uint16 {
	switch p := p.(type) {
	case *Publish:
		return p.PacketID
	case *Puback:
		return p.PacketID
	case *Pubrec:
		return p.PacketID
	case *Pubrel:
		return p.PacketID
	case *Pubcomp:
		return p.PacketID
	case *Subscribe:
		return p.PacketID
	case *Suback:
		return p.PacketID
	case *Unsubscribe:
		return p.PacketID
	case *Unsuback:
		return p.PacketID
	}
	return 0
}

// checkProperties rejects non-empty properties for pre-5.0 encodings.
func checkProperties(p *Properties, v Version) error {
	if v < Version5 && !p.Empty() {
		return ErrPropertiesNotSupported
	}
	return nil
}

func checkTopicName(name string) error {
	if err := topic.ValidateName(name); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidTopic, name, err)
	}
	return nil
}

func checkTopicFilter(filter string) error {
	if err := topic.ValidateFilter(filter); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidTopic, filter, err)
	}
	return nil
}

// emptyBody is embedded by packets without a variable header or payload.
type emptyBody struct{}

func (emptyBody) fixedFlags() byte { return 0 }

func (emptyBody) appendBody(b []byte, _ Version) ([]byte, error) { return b, nil }

func (emptyBody) decodeBody(d *decoder, _ byte, _ Version) error {
	if !d.done() {
		return detail(ErrMalformedPacket, "unexpected body of %d bytes", d.remaining())
	}
	return nil
}
