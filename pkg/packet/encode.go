package packet

import (
	"io"
	"sync"
)

// Encode returns the wire encoding of p under protocol version v.
// A CONNECT with a non-zero ProtocolVersion encodes with its own version.
func Encode(p Packet, v Version) ([]byte, error) {
	return Append(nil, p, v)
}

// Append appends the wire encoding of p to dst. On error dst is returned
// unchanged together with an *EncodeError.
func Append(dst []byte, p Packet, v Version) ([]byte, error) {
	if p == nil {
		return dst, &EncodeError{Err: ErrInvalidPacketType}
	}
	t := p.Type()
	if !v.Valid() {
		return dst, &EncodeError{Type: t, Err: detail(ErrInvalidProtocolVersion, "%d", v)}
	}

	scratch := GetBuffer()
	defer PutBuffer(scratch)

	body, err := p.appendBody((*scratch)[:0], v)
	*scratch = body[:0]
	if err != nil {
		return dst, &EncodeError{Type: t, Err: err}
	}
	if len(body) > MaxRemainingLength {
		return dst, &EncodeError{Type: t, Err: detail(ErrPacketTooLarge, "remaining length %d", len(body))}
	}

	out := append(dst, byte(t)<<4|p.fixedFlags()&0x0F)
	out, _ = AppendVarInt(out, uint32(len(body)))
	return append(out, body...), nil
}

// WriteTo encodes p and writes it to w in a single Write call.
func WriteTo(w io.Writer, p Packet, v Version) (int64, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	frame, err := Append((*buf)[:0], p, v)
	*buf = frame[:0]
	if err != nil {
		return 0, err
	}
	n, err := w.Write(frame)
	return int64(n), err
}

// maxPooledBuffer keeps oversized buffers from pinning memory in the pool.
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// GetBuffer returns an empty buffer from the pool.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(b *[]byte) {
	if cap(*b) > maxPooledBuffer {
		return
	}
	*b = (*b)[:0]
	bufferPool.Put(b)
}
