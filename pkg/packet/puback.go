package packet

// Puback represents an MQTT PUBACK packet (QoS 1 acknowledgment).
// MQTT 3.1.1 Section 3.4, MQTT 5.0 Section 3.4
type Puback struct {
	Header

	PacketID   uint16
	ReasonCode ReasonCode // MQTT 5.0 only
	Properties *Properties
}

// Pubrec represents an MQTT PUBREC packet (QoS 2 part 1).
// MQTT 3.1.1 Section 3.5, MQTT 5.0 Section 3.5
type Pubrec struct {
	Header

	PacketID   uint16
	ReasonCode ReasonCode // MQTT 5.0 only
	Properties *Properties
}

// Pubrel represents an MQTT PUBREL packet (QoS 2 part 2).
// MQTT 3.1.1 Section 3.6, MQTT 5.0 Section 3.6
type Pubrel struct {
	Header

	PacketID   uint16
	ReasonCode ReasonCode // MQTT 5.0 only
	Properties *Properties
}

// Pubcomp represents an MQTT PUBCOMP packet (QoS 2 part 3).
// MQTT 3.1.1 Section 3.7, MQTT 5.0 Section 3.7
type Pubcomp struct {
	Header

	PacketID   uint16
	ReasonCode ReasonCode // MQTT 5.0 only
	Properties *Properties
}

// ackReasonLength is the remaining length of a 5.0 acknowledgment carrying
// a reason code and no property block. A packet decoded in that form keeps
// it when encoded again, even for a success code.
const ackReasonLength = 3

func (p *Puback) Type() Type { return TypePuback }
func (p *Pubrec) Type() Type { return TypePubrec }
func (p *Pubrel) Type() Type { return TypePubrel }
func (p *Pubcomp) Type() Type { return TypePubcomp }

func (p *Puback) fixedFlags() byte { return 0 }
func (p *Pubrec) fixedFlags() byte { return 0 }
func (p *Pubrel) fixedFlags() byte { return PubrelFlags }
func (p *Pubcomp) fixedFlags() byte { return 0 }

func (p *Puback) appendBody(b []byte, v Version) ([]byte, error) {
	return appendAck(b, TypePuback, p.PacketID, p.ReasonCode, p.Properties, p.Length == ackReasonLength, v)
}

func (p *Pubrec) appendBody(b []byte, v Version) ([]byte, error) {
	return appendAck(b, TypePubrec, p.PacketID, p.ReasonCode, p.Properties, p.Length == ackReasonLength, v)
}

func (p *Pubrel) appendBody(b []byte, v Version) ([]byte, error) {
	return appendAck(b, TypePubrel, p.PacketID, p.ReasonCode, p.Properties, p.Length == ackReasonLength, v)
}

func (p *Pubcomp) appendBody(b []byte, v Version) ([]byte, error) {
	return appendAck(b, TypePubcomp, p.PacketID, p.ReasonCode, p.Properties, p.Length == ackReasonLength, v)
}

func (p *Puback) decodeBody(d *decoder, _ byte, v Version) (err error) {
	p.PacketID, p.ReasonCode, p.Properties, err = d.readAck(TypePuback, v)
	return err
}

func (p *Pubrec) decodeBody(d *decoder, _ byte, v Version) (err error) {
	p.PacketID, p.ReasonCode, p.Properties, err = d.readAck(TypePubrec, v)
	return err
}

func (p *Pubrel) decodeBody(d *decoder, _ byte, v Version) (err error) {
	p.PacketID, p.ReasonCode, p.Properties, err = d.readAck(TypePubrel, v)
	return err
}

func (p *Pubcomp) decodeBody(d *decoder, _ byte, v Version) (err error) {
	p.PacketID, p.ReasonCode, p.Properties, err = d.readAck(TypePubcomp, v)
	return err
}

// appendAck encodes the body shared by the four publish acknowledgments.
// Under 5.0 nil properties are omitted, and so is a success reason code
// unless reason is set. Non-nil properties are always written, even empty.
func appendAck(b []byte, t Type, id uint16, code ReasonCode, props *Properties, reason bool, v Version) ([]byte, error) {
	if id == 0 {
		return b, detail(ErrInvalidPacketID, "missing")
	}
	if err := checkProperties(props, v); err != nil {
		return b, err
	}
	if err := checkReason(code, t, v); err != nil {
		return b, err
	}
	b = appendUint16(b, id)
	if v < Version5 {
		return b, nil
	}
	return appendReasonTail(b, t, code, props, reason)
}

// appendReasonTail writes the optional reason code and property block.
func appendReasonTail(b []byte, t Type, code ReasonCode, props *Properties, reason bool) ([]byte, error) {
	if props == nil {
		if code == ReasonSuccess && !reason {
			return b, nil
		}
		return append(b, byte(code)), nil
	}
	return appendProperties(append(b, byte(code)), props, t)
}

func (d *decoder) readAck(t Type, v Version) (id uint16, code ReasonCode, props *Properties, err error) {
	if id, err = d.readUint16(); err != nil {
		return
	}
	if id == 0 {
		err = detail(ErrInvalidPacketID, "missing")
		return
	}
	if v < Version5 || d.done() {
		return
	}
	code, props, err = d.readReasonTail(t, v)
	return
}

// readReasonTail reads a reason code and, if bytes remain, a property block.
// A present but empty block yields empty, non-nil Properties.
func (d *decoder) readReasonTail(t Type, v Version) (code ReasonCode, props *Properties, err error) {
	var raw byte
	if raw, err = d.readByte(); err != nil {
		return
	}
	code = ReasonCode(raw)
	if err = checkReason(code, t, v); err != nil {
		return
	}
	if d.done() {
		return
	}
	if props, err = d.readProperties(t); err == nil && props == nil {
		props = &Properties{}
	}
	return
}
