package packet

// Unsubscribe represents an MQTT UNSUBSCRIBE packet.
// MQTT 3.1.1 Section 3.10, MQTT 5.0 Section 3.10
type Unsubscribe struct {
	Header

	PacketID   uint16
	Topics     []string
	Properties *Properties
}

// Type returns TypeUnsubscribe.
func (u *Unsubscribe) Type() Type {
	return TypeUnsubscribe
}

func (u *Unsubscribe) fixedFlags() byte { return UnsubscribeFlags }

func (u *Unsubscribe) appendBody(b []byte, v Version) ([]byte, error) {
	if u.PacketID == 0 {
		return b, detail(ErrInvalidPacketID, "missing")
	}
	if len(u.Topics) == 0 {
		return b, ErrEmptyPayload
	}
	if err := checkProperties(u.Properties, v); err != nil {
		return b, err
	}
	b = appendUint16(b, u.PacketID)
	var err error
	if v == Version5 {
		if b, err = appendProperties(b, u.Properties, TypeUnsubscribe); err != nil {
			return b, err
		}
	}
	for _, filter := range u.Topics {
		if err := checkTopicFilter(filter); err != nil {
			return b, err
		}
		if b, err = appendString(b, filter); err != nil {
			return b, err
		}
	}
	return b, nil
}

func (u *Unsubscribe) decodeBody(d *decoder, _ byte, v Version) error {
	var err error
	if u.PacketID, err = d.readUint16(); err != nil {
		return err
	}
	if u.PacketID == 0 {
		return detail(ErrInvalidPacketID, "missing")
	}
	if v == Version5 {
		if u.Properties, err = d.readProperties(TypeUnsubscribe); err != nil {
			return err
		}
	}
	for !d.done() {
		filter, err := d.readString()
		if err != nil {
			return err
		}
		if err := checkTopicFilter(filter); err != nil {
			return err
		}
		u.Topics = append(u.Topics, filter)
	}
	if len(u.Topics) == 0 {
		return ErrEmptyPayload
	}
	return nil
}

// Unsuback represents an MQTT UNSUBACK packet. Reason codes exist in 5.0 only;
// a 3.x UNSUBACK carries just the packet identifier.
// MQTT 3.1.1 Section 3.11, MQTT 5.0 Section 3.11
type Unsuback struct {
	Header

	PacketID    uint16
	ReasonCodes []ReasonCode // MQTT 5.0 only
	Properties  *Properties
}

// Type returns TypeUnsuback.
func (u *Unsuback) Type() Type {
	return TypeUnsuback
}

func (u *Unsuback) fixedFlags() byte { return 0 }

func (u *Unsuback) appendBody(b []byte, v Version) ([]byte, error) {
	if u.PacketID == 0 {
		return b, detail(ErrInvalidPacketID, "missing")
	}
	if err := checkProperties(u.Properties, v); err != nil {
		return b, err
	}
	if v < Version5 {
		if len(u.ReasonCodes) > 0 {
			return b, detail(ErrInvalidReasonCode, "reason codes require MQTT 5.0")
		}
		return appendUint16(b, u.PacketID), nil
	}
	if len(u.ReasonCodes) == 0 {
		return b, ErrEmptyPayload
	}
	b = appendUint16(b, u.PacketID)
	b, err := appendProperties(b, u.Properties, TypeUnsuback)
	if err != nil {
		return b, err
	}
	for _, code := range u.ReasonCodes {
		if err := checkReason(code, TypeUnsuback, v); err != nil {
			return b, err
		}
		b = append(b, byte(code))
	}
	return b, nil
}

func (u *Unsuback) decodeBody(d *decoder, _ byte, v Version) error {
	var err error
	if u.PacketID, err = d.readUint16(); err != nil {
		return err
	}
	if u.PacketID == 0 {
		return detail(ErrInvalidPacketID, "missing")
	}
	if v < Version5 {
		return nil
	}
	if u.Properties, err = d.readProperties(TypeUnsuback); err != nil {
		return err
	}
	for !d.done() {
		raw, _ := d.readByte()
		code := ReasonCode(raw)
		if err := checkReason(code, TypeUnsuback, v); err != nil {
			return err
		}
		u.ReasonCodes = append(u.ReasonCodes, code)
	}
	if len(u.ReasonCodes) == 0 {
		return ErrEmptyPayload
	}
	return nil
}
