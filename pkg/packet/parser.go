package packet

// ParserConfig configures a Parser. A nil config selects the defaults.
type ParserConfig struct {
	// Version used to decode packets until a CONNECT announces another one.
	// Defaults to Version311.
	Version Version

	// MaxPacketSize bounds the total frame size, fixed header included.
	// Zero means the protocol maximum.
	MaxPacketSize int

	// InternStrings deduplicates decoded strings such as topics and client
	// identifiers, which pays off when many packets repeat the same values.
	InternStrings bool
}

// Parser decodes MQTT packets from a byte stream delivered in arbitrary
// chunks. Feed appends bytes; Next returns one packet at a time, so a caller
// may stop consuming after any packet. A Parser is not safe for concurrent use.
type Parser struct {
	cfg     ParserConfig
	version Version
	buf     []byte
	start   int
	frame   []byte
	err     error
}

// NewParser creates a parser.
func NewParser(cfg *ParserConfig) *Parser {
	p := &Parser{}
	if cfg != nil {
		p.cfg = *cfg
	}
	if !p.cfg.Version.Valid() {
		p.cfg.Version = Version311
	}
	if p.cfg.MaxPacketSize <= 0 || p.cfg.MaxPacketSize > MaxFrameSize {
		p.cfg.MaxPacketSize = MaxFrameSize
	}
	p.version = p.cfg.Version
	return p
}

// Version returns the protocol version used for decoding.
func (p *Parser) Version() Version {
	return p.version
}

// SetVersion changes the protocol version used for subsequent packets.
func (p *Parser) SetVersion(v Version) {
	p.version = v
}

// Err returns the error that poisoned the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

// Buffered returns the number of bytes fed but not yet decoded.
func (p *Parser) Buffered() int {
	return len(p.buf) - p.start
}

// Feed appends chunk to the parser's buffer and returns the number of bytes
// consumed, which is len(chunk) unless the parser is poisoned. In that case
// nothing is consumed and the poisoning error is returned.
func (p *Parser) Feed(chunk []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.frame = nil
	if p.start > 0 {
		n := copy(p.buf, p.buf[p.start:])
		p.buf = p.buf[:n]
		p.start = 0
	}
	p.buf = append(p.buf, chunk...)
	return len(chunk), nil
}

// Next decodes the next complete packet. It returns (nil, nil) when more
// bytes are needed. Any wire format violation returns a *DecodeError and
// poisons the parser. Decoding a CONNECT switches the parser to the
// protocol version it announces.
func (p *Parser) Next() (Packet, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.frame = nil

	data := p.buf[p.start:]
	if len(data) == 0 {
		return nil, nil
	}

	t := Type(data[0] >> 4)
	flags := data[0] & 0x0F
	if !t.Valid() {
		return nil, p.fail(t, detail(ErrInvalidPacketType, "%d", byte(t)))
	}
	if t == TypeAuth && p.version < Version5 {
		return nil, p.fail(t, detail(ErrInvalidPacketType, "AUTH under MQTT %s", p.version))
	}
	if t != TypePublish && flags != requiredFlags(t) {
		return nil, p.fail(t, detail(ErrInvalidFlags, "0x%X", flags))
	}

	length, n, err := DecodeVarInt(data[1:])
	if err != nil {
		return nil, p.fail(t, err)
	}
	if n == 0 {
		return nil, nil
	}
	total := 1 + n + int(length)
	if total > p.cfg.MaxPacketSize {
		return nil, p.fail(t, detail(ErrPacketTooLarge, "%d bytes exceeds %d", total, p.cfg.MaxPacketSize))
	}
	if len(data) < total {
		return nil, nil
	}

	pkt := New(t)
	d := decoder{buf: data[1+n : total], intern: p.cfg.InternStrings}
	if err := pkt.decodeBody(&d, flags, p.version); err != nil {
		return nil, p.fail(t, err)
	}
	if !d.done() {
		return nil, p.fail(t, detail(ErrMalformedPacket, "%d trailing bytes", d.remaining()))
	}
	pkt.setRemainingLength(int(length))

	p.frame = data[:total]
	p.start += total
	if c, ok := pkt.(*Connect); ok {
		p.version = c.ProtocolVersion
	}
	return pkt, nil
}

// Frame returns the raw bytes of the packet most recently returned by Next.
// The slice is only valid until the next call to Feed or Next.
func (p *Parser) Frame() []byte {
	return p.frame
}

// Reset discards buffered bytes and any poisoning error. The protocol
// version is kept.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.start = 0
	p.frame = nil
	p.err = nil
}

func (p *Parser) fail(t Type, err error) error {
	p.err = &DecodeError{Type: t, Err: err}
	return p.err
}

// ParseAll decodes every packet in data under version v. If data ends with
// a partial packet, the packets decoded so far are returned together with a
// *DecodeError wrapping ErrIncompletePacket.
func ParseAll(data []byte, v Version) ([]Packet, error) {
	p := NewParser(&ParserConfig{Version: v})
	p.Feed(data)

	var pkts []Packet
	for {
		pkt, err := p.Next()
		if err != nil {
			return pkts, err
		}
		if pkt == nil {
			break
		}
		pkts = append(pkts, pkt)
	}
	if rest := p.buf[p.start:]; len(rest) > 0 {
		return pkts, &DecodeError{Type: Type(rest[0] >> 4), Err: ErrIncompletePacket}
	}
	return pkts, nil
}
