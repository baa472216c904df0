package packet

import (
	"encoding/binary"
	"unicode/utf8"
	"unique"
)

// AppendVarInt appends value as a variable byte integer.
// MQTT 5.0 Section 1.5.5, MQTT 3.1.1 Section 2.2.3
func AppendVarInt(b []byte, value uint32) ([]byte, error) {
	if value > MaxRemainingLength {
		return b, ErrPacketTooLarge
	}
	for {
		encodedByte := byte(value & 0x7F)
		value >>= 7
		if value > 0 {
			encodedByte |= 0x80
		}
		b = append(b, encodedByte)
		if value == 0 {
			return b, nil
		}
	}
}

// DecodeVarInt decodes a variable byte integer from the start of buf.
// It returns n == 0 with a nil error when buf ends before the final byte,
// and ErrMalformedRemainingLength when a fourth byte still has its
// continuation bit set or the encoding is longer than necessary.
func DecodeVarInt(buf []byte) (value uint32, n int, err error) {
	var shift uint
	for i := 0; i < len(buf); i++ {
		if i == 4 {
			return 0, 0, ErrMalformedRemainingLength
		}
		encodedByte := buf[i]
		value |= uint32(encodedByte&0x7F) << shift
		if encodedByte&0x80 == 0 {
			// A zero final byte after a continuation adds nothing.
			if i > 0 && encodedByte == 0 {
				return 0, 0, ErrMalformedRemainingLength
			}
			return value, i + 1, nil
		}
		shift += 7
	}
	if len(buf) >= 4 {
		return 0, 0, ErrMalformedRemainingLength
	}
	return 0, 0, nil
}

// VarIntSize returns the number of bytes needed to encode a value as a variable byte integer.
func VarIntSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}

// insertVarInt writes the length of b[at:] as a variable byte integer at
// position at, shifting the tail right.
func insertVarInt(b []byte, at int) ([]byte, error) {
	n := len(b) - at
	if n > MaxRemainingLength {
		return b, ErrPacketTooLarge
	}
	size := VarIntSize(uint32(n))
	var pad [4]byte
	b = append(b, pad[:size]...)
	copy(b[at+size:], b[at:at+n])
	prefix, _ := AppendVarInt(pad[:0], uint32(n))
	copy(b[at:], prefix)
	return b, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// appendString appends a length-prefixed UTF-8 string.
// MQTT 5.0 Section 1.5.4, MQTT 3.1.1 Section 1.5.3
func appendString(b []byte, s string) ([]byte, error) {
	if len(s) > 65535 {
		return b, ErrStringTooLong
	}
	if err := validateUTF8(s); err != nil {
		return b, err
	}
	b = appendUint16(b, uint16(len(s)))
	return append(b, s...), nil
}

// appendBinary appends length-prefixed binary data.
// MQTT 5.0 Section 1.5.6
func appendBinary(b []byte, data []byte) ([]byte, error) {
	if len(data) > 65535 {
		return b, ErrStringTooLong
	}
	b = appendUint16(b, uint16(len(data)))
	return append(b, data...), nil
}

// validateUTF8 rejects ill-formed UTF-8 and the null character.
// Surrogates are already ill-formed in Go's decoder.
func validateUTF8(s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return ErrInvalidUTF8
		}
	}
	return nil
}

// decoder is a cursor over one packet body. Every read copies, so decoded
// packets never alias the parser's buffer.
type decoder struct {
	buf    []byte
	pos    int
	intern bool
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) done() bool { return d.pos >= len(d.buf) }

func (d *decoder) readByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, ErrTruncated
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if d.remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) readVarInt() (uint32, error) {
	v, n, err := DecodeVarInt(d.buf[d.pos:])
	if err != nil {
		return 0, ErrMalformedPacket
	}
	if n == 0 {
		return 0, ErrTruncated
	}
	d.pos += n
	return v, nil
}

func (d *decoder) readRaw() ([]byte, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	if d.remaining() < int(n) {
		return nil, ErrTruncated
	}
	raw := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return raw, nil
}

func (d *decoder) readString() (string, error) {
	raw, err := d.readRaw()
	if err != nil {
		return "", err
	}
	s := string(raw)
	if err := validateUTF8(s); err != nil {
		return "", err
	}
	if d.intern {
		s = unique.Make(s).Value()
	}
	return s, nil
}

func (d *decoder) readBinary() ([]byte, error) {
	raw, err := d.readRaw()
	if err != nil {
		return nil, err
	}
	return append([]byte{}, raw...), nil
}

// readRest consumes the remainder of the body. An empty remainder yields nil.
func (d *decoder) readRest() []byte {
	if d.done() {
		return nil
	}
	rest := append([]byte(nil), d.buf[d.pos:]...)
	d.pos = len(d.buf)
	return rest
}
