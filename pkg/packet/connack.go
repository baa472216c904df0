package packet

// Connack represents an MQTT CONNACK packet.
// MQTT 3.1.1 Section 3.2, MQTT 5.0 Section 3.2
type Connack struct {
	Header

	SessionPresent bool
	ReasonCode     ReasonCode // return code under 3.x, reason code under 5.0
	Properties     *Properties
}

// Type returns TypeConnack.
func (c *Connack) Type() Type {
	return TypeConnack
}

func (c *Connack) fixedFlags() byte { return 0 }

func (c *Connack) appendBody(b []byte, v Version) ([]byte, error) {
	if err := checkProperties(c.Properties, v); err != nil {
		return b, err
	}
	if err := checkReason(c.ReasonCode, TypeConnack, v); err != nil {
		return b, err
	}
	var ack byte
	if c.SessionPresent {
		ack = 0x01
	}
	b = append(b, ack, byte(c.ReasonCode))
	if v == Version5 {
		return appendProperties(b, c.Properties, TypeConnack)
	}
	return b, nil
}

func (c *Connack) decodeBody(d *decoder, _ byte, v Version) error {
	ack, err := d.readByte()
	if err != nil {
		return err
	}
	if ack&^0x01 != 0 {
		return detail(ErrInvalidFlags, "reserved acknowledge flags 0x%02X", ack)
	}
	c.SessionPresent = ack&0x01 != 0

	code, err := d.readByte()
	if err != nil {
		return err
	}
	c.ReasonCode = ReasonCode(code)
	if err := checkReason(c.ReasonCode, TypeConnack, v); err != nil {
		return err
	}
	if v == Version5 {
		c.Properties, err = d.readProperties(TypeConnack)
	}
	return err
}
