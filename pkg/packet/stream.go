package packet

import (
	"errors"
	"io"
	"sync"
)

// Reader reads MQTT packets from an io.Reader, feeding a Parser with
// whatever the underlying reader returns.
type Reader struct {
	r      io.Reader
	parser *Parser
	chunk  []byte
}

// NewReader creates a packet reader. A nil cfg selects the parser defaults.
func NewReader(r io.Reader, cfg *ParserConfig) *Reader {
	return &Reader{
		r:      r,
		parser: NewParser(cfg),
		chunk:  make([]byte, 4096),
	}
}

// SetVersion sets the protocol version for packet decoding.
func (r *Reader) SetVersion(v Version) {
	r.parser.SetVersion(v)
}

// Version returns the current protocol version.
func (r *Reader) Version() Version {
	return r.parser.Version()
}

// Frame returns the raw bytes of the last packet read.
func (r *Reader) Frame() []byte {
	return r.parser.Frame()
}

// ReadPacket blocks until a complete packet is available. It returns io.EOF
// when the stream ends on a packet boundary and io.ErrUnexpectedEOF when it
// ends inside a packet.
func (r *Reader) ReadPacket() (Packet, error) {
	for {
		pkt, err := r.parser.Next()
		if err != nil || pkt != nil {
			return pkt, err
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.parser.Feed(r.chunk[:n])
		}
		if err != nil {
			if pkt, perr := r.parser.Next(); perr != nil || pkt != nil {
				return pkt, perr
			}
			if errors.Is(err, io.EOF) && r.parser.Buffered() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// Writer encodes packets onto an io.Writer. It is safe for concurrent use;
// each packet is written with a single Write call.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	version Version
}

// NewWriter creates a packet writer encoding with version v.
func NewWriter(w io.Writer, v Version) *Writer {
	return &Writer{w: w, version: v}
}

// SetVersion sets the protocol version for packet encoding.
func (w *Writer) SetVersion(v Version) {
	w.mu.Lock()
	w.version = v
	w.mu.Unlock()
}

// Version returns the current protocol version.
func (w *Writer) Version() Version {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// WritePacket encodes and writes p. Writing a CONNECT that names a protocol
// version switches the writer to that version.
func (w *Writer) WritePacket(p Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := WriteTo(w.w, p, w.version); err != nil {
		return err
	}
	if c, ok := p.(*Connect); ok && c.ProtocolVersion != 0 {
		w.version = c.ProtocolVersion
	}
	return nil
}
