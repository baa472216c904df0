package packet

// Auth represents an MQTT 5.0 AUTH packet used for enhanced authentication.
// It cannot be encoded or decoded under 3.x.
// MQTT 5.0 Section 3.15
type Auth struct {
	Header

	ReasonCode ReasonCode
	Properties *Properties
}

// Type returns TypeAuth.
func (a *Auth) Type() Type {
	return TypeAuth
}

func (a *Auth) fixedFlags() byte { return 0 }

func (a *Auth) appendBody(b []byte, v Version) ([]byte, error) {
	if v < Version5 {
		return b, detail(ErrInvalidPacketType, "AUTH requires MQTT 5.0")
	}
	return appendReasonBody(b, TypeAuth, a.ReasonCode, a.Properties, a.Length == reasonOnlyLength, v)
}

func (a *Auth) decodeBody(d *decoder, _ byte, v Version) (err error) {
	a.ReasonCode, a.Properties, err = d.readReasonBody(TypeAuth, v)
	return err
}
