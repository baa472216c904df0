package packet

// Publish represents an MQTT PUBLISH packet.
// MQTT 3.1.1 Section 3.3, MQTT 5.0 Section 3.3
type Publish struct {
	Header

	Topic    string
	PacketID uint16 // required for QoS 1 and 2, must be 0 for QoS 0
	QoS      QoS
	Dup      bool // must be false for QoS 0
	Retain   bool
	Payload  []byte

	Properties *Properties
}

// Type returns TypePublish.
func (p *Publish) Type() Type {
	return TypePublish
}

func (p *Publish) fixedFlags() byte {
	flags := byte(p.QoS&0x03) << 1
	if p.Dup {
		flags |= PublishFlagDup
	}
	if p.Retain {
		flags |= PublishFlagRetain
	}
	return flags
}

func (p *Publish) hasTopicAlias() bool {
	return p.Properties != nil && p.Properties.TopicAlias != nil
}

func (p *Publish) checkTopic(v Version) error {
	// A 5.0 publish may replace the topic with a topic alias.
	if p.Topic == "" && v == Version5 && p.hasTopicAlias() {
		return nil
	}
	return checkTopicName(p.Topic)
}

func (p *Publish) appendBody(b []byte, v Version) ([]byte, error) {
	if !p.QoS.Valid() {
		return b, detail(ErrInvalidQoS, "%d", p.QoS)
	}
	if p.QoS == QoS0 {
		if p.PacketID != 0 {
			return b, detail(ErrUnexpectedPacketID, "%d at QoS 0", p.PacketID)
		}
		if p.Dup {
			return b, detail(ErrInvalidFlags, "DUP set at QoS 0")
		}
	} else if p.PacketID == 0 {
		return b, detail(ErrInvalidPacketID, "missing at QoS %d", p.QoS)
	}
	if err := checkProperties(p.Properties, v); err != nil {
		return b, err
	}
	if err := p.checkTopic(v); err != nil {
		return b, err
	}

	b, err := appendString(b, p.Topic)
	if err != nil {
		return b, err
	}
	if p.QoS > QoS0 {
		b = appendUint16(b, p.PacketID)
	}
	if v == Version5 {
		if b, err = appendProperties(b, p.Properties, TypePublish); err != nil {
			return b, err
		}
	}
	return append(b, p.Payload...), nil
}

func (p *Publish) decodeBody(d *decoder, flags byte, v Version) error {
	p.QoS = QoS((flags >> 1) & 0x03)
	if !p.QoS.Valid() {
		return detail(ErrInvalidQoS, "%d", p.QoS)
	}
	p.Dup = flags&PublishFlagDup != 0
	p.Retain = flags&PublishFlagRetain != 0
	if p.Dup && p.QoS == QoS0 {
		return detail(ErrInvalidFlags, "DUP set at QoS 0")
	}

	var err error
	if p.Topic, err = d.readString(); err != nil {
		return err
	}
	if p.QoS > QoS0 {
		if p.PacketID, err = d.readUint16(); err != nil {
			return err
		}
		if p.PacketID == 0 {
			return detail(ErrInvalidPacketID, "missing at QoS %d", p.QoS)
		}
	}
	if v == Version5 {
		if p.Properties, err = d.readProperties(TypePublish); err != nil {
			return err
		}
	}
	if err := p.checkTopic(v); err != nil {
		return err
	}
	p.Payload = d.readRest()
	return nil
}
