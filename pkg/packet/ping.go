package packet

// Pingreq represents an MQTT PINGREQ packet.
// MQTT 3.1.1 Section 3.12, MQTT 5.0 Section 3.12
type Pingreq struct {
	Header
	emptyBody
}

// Type returns TypePingreq.
func (p *Pingreq) Type() Type {
	return TypePingreq
}

// Pingresp represents an MQTT PINGRESP packet.
// MQTT 3.1.1 Section 3.13, MQTT 5.0 Section 3.13
type Pingresp struct {
	Header
	emptyBody
}

// Type returns TypePingresp.
func (p *Pingresp) Type() Type {
	return TypePingresp
}
