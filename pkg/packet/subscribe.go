package packet

// RetainHandling controls when retained messages are sent for a new
// subscription (MQTT 5.0 Section 3.8.3.1).
type RetainHandling byte

const (
	RetainSendOnSubscribe       RetainHandling = 0
	RetainSendIfNewSubscription RetainHandling = 1
	RetainDoNotSend             RetainHandling = 2
)

// Subscription is one topic filter entry of a SUBSCRIBE packet.
type Subscription struct {
	Topic             string
	QoS               QoS
	NoLocal           bool           // MQTT 5.0 only
	RetainAsPublished bool           // MQTT 5.0 only
	RetainHandling    RetainHandling // MQTT 5.0 only
}

const (
	subOptionQoSMask           = 0x03
	subOptionNoLocal           = 1 << 2
	subOptionRetainAsPublished = 1 << 3
	subOptionRetainShift       = 4
	subOptionReservedV5        = 0xC0
)

func (s Subscription) options(v Version) (byte, error) {
	if !s.QoS.Valid() {
		return 0, detail(ErrInvalidQoS, "%d for %q", s.QoS, s.Topic)
	}
	opts := byte(s.QoS)
	if v < Version5 {
		if s.NoLocal || s.RetainAsPublished || s.RetainHandling != 0 {
			return 0, detail(ErrInvalidSubscribeOptions, "5.0 options on %s subscription %q", v, s.Topic)
		}
		return opts, nil
	}
	if s.RetainHandling > RetainDoNotSend {
		return 0, detail(ErrInvalidSubscribeOptions, "retain handling %d", s.RetainHandling)
	}
	if s.NoLocal {
		opts |= subOptionNoLocal
	}
	if s.RetainAsPublished {
		opts |= subOptionRetainAsPublished
	}
	return opts | byte(s.RetainHandling)<<subOptionRetainShift, nil
}

func parseOptions(opts byte, v Version) (Subscription, error) {
	var s Subscription
	reserved := byte(subOptionReservedV5)
	if v < Version5 {
		reserved = ^byte(subOptionQoSMask)
	}
	if opts&reserved != 0 {
		return s, detail(ErrInvalidSubscribeOptions, "reserved bits 0x%02X", opts&reserved)
	}
	s.QoS = QoS(opts & subOptionQoSMask)
	if !s.QoS.Valid() {
		return s, detail(ErrInvalidQoS, "%d", s.QoS)
	}
	s.NoLocal = opts&subOptionNoLocal != 0
	s.RetainAsPublished = opts&subOptionRetainAsPublished != 0
	s.RetainHandling = RetainHandling((opts >> subOptionRetainShift) & 0x03)
	if s.RetainHandling > RetainDoNotSend {
		return s, detail(ErrInvalidSubscribeOptions, "retain handling %d", s.RetainHandling)
	}
	return s, nil
}

// Subscribe represents an MQTT SUBSCRIBE packet.
// MQTT 3.1.1 Section 3.8, MQTT 5.0 Section 3.8
type Subscribe struct {
	Header

	PacketID      uint16
	Subscriptions []Subscription
	Properties    *Properties
}

// Type returns TypeSubscribe.
func (s *Subscribe) Type() Type {
	return TypeSubscribe
}

func (s *Subscribe) fixedFlags() byte { return SubscribeFlags }

func (s *Subscribe) appendBody(b []byte, v Version) ([]byte, error) {
	if s.PacketID == 0 {
		return b, detail(ErrInvalidPacketID, "missing")
	}
	if len(s.Subscriptions) == 0 {
		return b, ErrEmptyPayload
	}
	if err := checkProperties(s.Properties, v); err != nil {
		return b, err
	}

	b = appendUint16(b, s.PacketID)
	var err error
	if v == Version5 {
		if b, err = appendProperties(b, s.Properties, TypeSubscribe); err != nil {
			return b, err
		}
	}
	for _, sub := range s.Subscriptions {
		if err := checkTopicFilter(sub.Topic); err != nil {
			return b, err
		}
		opts, err := sub.options(v)
		if err != nil {
			return b, err
		}
		if b, err = appendString(b, sub.Topic); err != nil {
			return b, err
		}
		b = append(b, opts)
	}
	return b, nil
}

func (s *Subscribe) decodeBody(d *decoder, _ byte, v Version) error {
	var err error
	if s.PacketID, err = d.readUint16(); err != nil {
		return err
	}
	if s.PacketID == 0 {
		return detail(ErrInvalidPacketID, "missing")
	}
	if v == Version5 {
		if s.Properties, err = d.readProperties(TypeSubscribe); err != nil {
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
		opts, err := d.readByte()
		if err != nil {
			return err
		}
		sub, err := parseOptions(opts, v)
		if err != nil {
			return err
		}
		sub.Topic = filter
		s.Subscriptions = append(s.Subscriptions, sub)
	}
	if len(s.Subscriptions) == 0 {
		return ErrEmptyPayload
	}
	return nil
}

// Suback represents an MQTT SUBACK packet. ReasonCodes align positionally
// with the subscriptions of the acknowledged SUBSCRIBE.
// MQTT 3.1.1 Section 3.9, MQTT 5.0 Section 3.9
type Suback struct {
	Header

	PacketID    uint16
	ReasonCodes []ReasonCode
	Properties  *Properties
}

// Type returns TypeSuback.
func (s *Suback) Type() Type {
	return TypeSuback
}

func (s *Suback) fixedFlags() byte { return 0 }

func (s *Suback) appendBody(b []byte, v Version) ([]byte, error) {
	if s.PacketID == 0 {
		return b, detail(ErrInvalidPacketID, "missing")
	}
	if len(s.ReasonCodes) == 0 {
		return b, ErrEmptyPayload
	}
	if err := checkProperties(s.Properties, v); err != nil {
		return b, err
	}
	b = appendUint16(b, s.PacketID)
	if v == Version5 {
		var err error
		if b, err = appendProperties(b, s.Properties, TypeSuback); err != nil {
			return b, err
		}
	}
	for _, code := range s.ReasonCodes {
		if err := checkReason(code, TypeSuback, v); err != nil {
			return b, err
		}
		b = append(b, byte(code))
	}
	return b, nil
}

func (s *Suback) decodeBody(d *decoder, _ byte, v Version) error {
	var err error
	if s.PacketID, err = d.readUint16(); err != nil {
		return err
	}
	if s.PacketID == 0 {
		return detail(ErrInvalidPacketID, "missing")
	}
	if v == Version5 {
		if s.Properties, err = d.readProperties(TypeSuback); err != nil {
			return err
		}
	}
	for !d.done() {
		raw, _ := d.readByte()
		code := ReasonCode(raw)
		if err := checkReason(code, TypeSuback, v); err != nil {
			return err
		}
		s.ReasonCodes = append(s.ReasonCodes, code)
	}
	if len(s.ReasonCodes) == 0 {
		return ErrEmptyPayload
	}
	return nil
}
