package packet

// Connect represents an MQTT CONNECT packet.
// MQTT 3.1.1 Section 3.1, MQTT 5.0 Section 3.1
type Connect struct {
	Header

	ProtocolName    string  // "MQTT", or "MQIsdp" for 3.1; defaulted from ProtocolVersion when empty
	ProtocolVersion Version // 0 encodes with the version passed to the encoder
	Bridge          bool    // bridge bit (0x80) of the protocol version byte

	CleanStart bool // Clean Session (v3.x) or Clean Start (v5.0)
	KeepAlive  uint16

	ClientID string
	Will     *Will

	// A username or password is sent when its flag is set or its value is non-empty.
	UsernameFlag bool
	Username     string
	PasswordFlag bool
	Password     []byte

	Properties *Properties
}

// Type returns TypeConnect.
func (c *Connect) Type() Type {
	return TypeConnect
}

const (
	connectFlagReserved   = 1 << 0
	connectFlagCleanStart = 1 << 1
	connectFlagWill       = 1 << 2
	connectFlagWillRetain = 1 << 5
	connectFlagPassword   = 1 << 6
	connectFlagUsername   = 1 << 7
)

func (c *Connect) fixedFlags() byte { return 0 }

// version returns the protocol version the CONNECT announces. A CONNECT
// always encodes with its own version since the peer learns it from here.
func (c *Connect) version(v Version) Version {
	if c.ProtocolVersion != 0 {
		return c.ProtocolVersion
	}
	return v
}

// protocolNameFor returns the protocol name paired with level v:
// MQIsdp for 3.1, MQTT for 3.1.1 and 5.0.
func protocolNameFor(v Version) string {
	if v == Version31 {
		return ProtocolNameMQIsdp
	}
	return ProtocolNameMQTT
}

func (c *Connect) hasUsername() bool { return c.UsernameFlag || c.Username != "" }

func (c *Connect) hasPassword() bool { return c.PasswordFlag || c.Password != nil }

func (c *Connect) appendBody(b []byte, v Version) ([]byte, error) {
	v = c.version(v)
	if !v.Valid() {
		return b, detail(ErrInvalidProtocolVersion, "%d", v)
	}
	name := c.ProtocolName
	if name == "" {
		name = protocolNameFor(v)
	}
	if name != protocolNameFor(v) {
		return b, detail(ErrInvalidProtocolName, "%q for MQTT %s", name, v)
	}
	if err := checkProperties(c.Properties, v); err != nil {
		return b, err
	}
	if v < Version5 && c.hasPassword() && !c.hasUsername() {
		return b, detail(ErrInvalidFlags, "password without username")
	}

	var flags byte
	if c.CleanStart {
		flags |= connectFlagCleanStart
	}
	if w := c.Will; w != nil {
		if !w.QoS.Valid() {
			return b, detail(ErrInvalidQoS, "will QoS %d", w.QoS)
		}
		if err := checkTopicName(w.Topic); err != nil {
			return b, err
		}
		if err := checkProperties(w.Properties, v); err != nil {
			return b, err
		}
		flags |= connectFlagWill | byte(w.QoS)<<3
		if w.Retain {
			flags |= connectFlagWillRetain
		}
	}
	if c.hasUsername() {
		flags |= connectFlagUsername
	}
	if c.hasPassword() {
		flags |= connectFlagPassword
	}

	b, err := appendString(b, name)
	if err != nil {
		return b, err
	}
	level := byte(v)
	if c.Bridge {
		level |= BridgeFlag
	}
	b = append(b, level, flags)
	b = appendUint16(b, c.KeepAlive)
	if v == Version5 {
		if b, err = appendProperties(b, c.Properties, TypeConnect); err != nil {
			return b, err
		}
	}

	if b, err = appendString(b, c.ClientID); err != nil {
		return b, err
	}
	if w := c.Will; w != nil {
		if v == Version5 {
			if b, err = appendProperties(b, w.Properties, willOwner); err != nil {
				return b, err
			}
		}
		if b, err = appendString(b, w.Topic); err != nil {
			return b, err
		}
		if b, err = appendBinary(b, w.Payload); err != nil {
			return b, err
		}
	}
	if c.hasUsername() {
		if b, err = appendString(b, c.Username); err != nil {
			return b, err
		}
	}
	if c.hasPassword() {
		if b, err = appendBinary(b, c.Password); err != nil {
			return b, err
		}
	}
	return b, nil
}

// decodeBody ignores the parser's version: CONNECT declares its own.
func (c *Connect) decodeBody(d *decoder, _ byte, _ Version) error {
	name, err := d.readString()
	if err != nil {
		return err
	}
	if name != ProtocolNameMQTT && name != ProtocolNameMQIsdp {
		return detail(ErrInvalidProtocolName, "%q", name)
	}
	c.ProtocolName = name

	level, err := d.readByte()
	if err != nil {
		return err
	}
	c.Bridge = level&BridgeFlag != 0
	v := Version(level &^ BridgeFlag)
	if !v.Valid() {
		return detail(ErrInvalidProtocolVersion, "%d", level)
	}
	if name != protocolNameFor(v) {
		return detail(ErrInvalidProtocolName, "%q for MQTT %s", name, v)
	}
	c.ProtocolVersion = v

	flags, err := d.readByte()
	if err != nil {
		return err
	}
	if flags&connectFlagReserved != 0 {
		return detail(ErrInvalidFlags, "reserved connect flag set")
	}
	c.CleanStart = flags&connectFlagCleanStart != 0
	willQoS := QoS((flags >> 3) & 0x03)
	willRetain := flags&connectFlagWillRetain != 0
	hasWill := flags&connectFlagWill != 0
	c.UsernameFlag = flags&connectFlagUsername != 0
	c.PasswordFlag = flags&connectFlagPassword != 0
	if !hasWill && (willQoS != 0 || willRetain) {
		return detail(ErrInvalidFlags, "will QoS or retain without will flag")
	}
	if !willQoS.Valid() {
		return detail(ErrInvalidQoS, "will QoS %d", willQoS)
	}
	if v < Version5 && c.PasswordFlag && !c.UsernameFlag {
		return detail(ErrInvalidFlags, "password without username")
	}

	if c.KeepAlive, err = d.readUint16(); err != nil {
		return err
	}
	if v == Version5 {
		if c.Properties, err = d.readProperties(TypeConnect); err != nil {
			return err
		}
	}

	if c.ClientID, err = d.readString(); err != nil {
		return err
	}
	if hasWill {
		w := &Will{QoS: willQoS, Retain: willRetain}
		if v == Version5 {
			if w.Properties, err = d.readProperties(willOwner); err != nil {
				return err
			}
		}
		if w.Topic, err = d.readString(); err != nil {
			return err
		}
		if err := checkTopicName(w.Topic); err != nil {
			return err
		}
		if w.Payload, err = d.readBinary(); err != nil {
			return err
		}
		c.Will = w
	}
	if c.UsernameFlag {
		if c.Username, err = d.readString(); err != nil {
			return err
		}
	}
	if c.PasswordFlag {
		if c.Password, err = d.readBinary(); err != nil {
			return err
		}
	}
	return nil
}
