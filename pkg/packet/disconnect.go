package packet

// Disconnect represents an MQTT DISCONNECT packet. Under 3.x the packet has
// no body and ReasonCode must be ReasonSuccess.
// MQTT 3.1.1 Section 3.14, MQTT 5.0 Section 3.14
type Disconnect struct {
	Header

	ReasonCode ReasonCode // MQTT 5.0 only
	Properties *Properties
}

// Type returns TypeDisconnect.
func (d *Disconnect) Type() Type {
	return TypeDisconnect
}

func (d *Disconnect) fixedFlags() byte { return 0 }

func (d *Disconnect) appendBody(b []byte, v Version) ([]byte, error) {
	return appendReasonBody(b, TypeDisconnect, d.ReasonCode, d.Properties, d.Length == reasonOnlyLength, v)
}

func (d *Disconnect) decodeBody(dec *decoder, _ byte, v Version) (err error) {
	d.ReasonCode, d.Properties, err = dec.readReasonBody(TypeDisconnect, v)
	return err
}

// reasonOnlyLength is the remaining length of a 5.0 DISCONNECT or AUTH that
// carries only a reason code.
const reasonOnlyLength = 1

// appendReasonBody encodes the optional reason code and properties shared by
// DISCONNECT and AUTH. Both are omitted for a plain success.
func appendReasonBody(b []byte, t Type, code ReasonCode, props *Properties, reason bool, v Version) ([]byte, error) {
	if err := checkProperties(props, v); err != nil {
		return b, err
	}
	if err := checkReason(code, t, v); err != nil {
		return b, err
	}
	if v < Version5 {
		return b, nil
	}
	return appendReasonTail(b, t, code, props, reason)
}

func (d *decoder) readReasonBody(t Type, v Version) (code ReasonCode, props *Properties, err error) {
	if v < Version5 || d.done() {
		return
	}
	return d.readReasonTail(t, v)
}
