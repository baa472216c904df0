package packet

import (
	"errors"
	"fmt"
)

// Sentinel errors for packet parsing and encoding. Every error returned by
// the encoder or parser wraps exactly one of these.
var (
	// ErrMalformedPacket indicates the packet structure is invalid.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrMalformedRemainingLength indicates the remaining length encoding is invalid.
	ErrMalformedRemainingLength = errors.New("malformed remaining length")

	// ErrPacketTooLarge indicates the packet exceeds maximum allowed size.
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrTruncated indicates a field runs past the end of the packet body.
	ErrTruncated = errors.New("field exceeds remaining length")

	// ErrInvalidPacketType indicates an unknown or reserved packet type,
	// or a type the protocol version does not define.
	ErrInvalidPacketType = errors.New("invalid packet type")

	// ErrInvalidFlags indicates invalid fixed header or CONNECT flags.
	ErrInvalidFlags = errors.New("invalid packet flags")

	// ErrInvalidQoS indicates an invalid QoS level.
	ErrInvalidQoS = errors.New("invalid QoS level")

	// ErrInvalidProtocolName indicates an unrecognized protocol name.
	ErrInvalidProtocolName = errors.New("invalid protocol name")

	// ErrInvalidProtocolVersion indicates an unsupported protocol version.
	ErrInvalidProtocolVersion = errors.New("invalid protocol version")

	// ErrInvalidUTF8 indicates a string is not well-formed UTF-8 or contains U+0000.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 string")

	// ErrStringTooLong indicates a string or binary field longer than 65535 bytes.
	ErrStringTooLong = errors.New("string or binary field too long")

	// ErrInvalidTopic indicates an invalid topic name or topic filter.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidPacketID indicates a zero packet identifier where one is required.
	ErrInvalidPacketID = errors.New("invalid packet identifier")

	// ErrUnexpectedPacketID indicates a packet identifier on a QoS 0 PUBLISH.
	ErrUnexpectedPacketID = errors.New("unexpected packet identifier")

	// ErrEmptyPayload indicates a SUBSCRIBE, SUBACK, UNSUBSCRIBE or 5.0 UNSUBACK without entries.
	ErrEmptyPayload = errors.New("packet requires at least one entry")

	// ErrInvalidSubscribeOptions indicates reserved or version-gated subscription option bits.
	ErrInvalidSubscribeOptions = errors.New("invalid subscription options")

	// ErrIncompletePacket indicates trailing bytes that do not form a whole packet.
	ErrIncompletePacket = errors.New("incomplete packet")

	// ErrInvalidPropertyID indicates an unknown property identifier (MQTT 5.0).
	ErrInvalidPropertyID = errors.New("invalid property identifier")

	// ErrDuplicateProperty indicates a property that must be unique appears multiple times.
	ErrDuplicateProperty = errors.New("duplicate property")

	// ErrPropertyNotAllowed indicates a property that is not defined for the packet type.
	ErrPropertyNotAllowed = errors.New("property not allowed for packet type")

	// ErrInvalidPropertyValue indicates a property value outside its permitted range.
	ErrInvalidPropertyValue = errors.New("invalid property value")

	// ErrPropertiesNotSupported indicates properties supplied for a pre-5.0 encoding.
	ErrPropertiesNotSupported = errors.New("properties require MQTT 5.0")

	// ErrInvalidReasonCode indicates a reason code not defined for the packet type.
	ErrInvalidReasonCode = errors.New("invalid reason code")
)

// DecodeError reports bytes that violate the wire format. A parser that
// returned a DecodeError is poisoned.
type DecodeError struct {
	Type Type // TypeReserved0 when the fixed header itself was unreadable
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a packet value that cannot be represented on the wire.
type EncodeError struct {
	Type Type
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// detail attaches context to a sentinel while keeping it matchable with errors.Is.
func detail(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
