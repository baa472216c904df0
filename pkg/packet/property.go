package packet

import "fmt"

// PropertyID represents an MQTT 5.0 property identifier.
// MQTT 5.0 Section 2.2.2.2
type PropertyID byte

// Property identifiers as defined in MQTT 5.0 Table 2-4
const (
	PropPayloadFormat        PropertyID = 0x01
	PropMessageExpiry        PropertyID = 0x02
	PropContentType          PropertyID = 0x03
	PropResponseTopic        PropertyID = 0x08
	PropCorrelationData      PropertyID = 0x09
	PropSubscriptionID       PropertyID = 0x0B
	PropSessionExpiry        PropertyID = 0x11
	PropAssignedClientID     PropertyID = 0x12
	PropServerKeepAlive      PropertyID = 0x13
	PropAuthMethod           PropertyID = 0x15
	PropAuthData             PropertyID = 0x16
	PropRequestProblemInfo   PropertyID = 0x17
	PropWillDelayInterval    PropertyID = 0x18
	PropRequestResponseInfo  PropertyID = 0x19
	PropResponseInfo         PropertyID = 0x1A
	PropServerReference      PropertyID = 0x1C
	PropReasonString         PropertyID = 0x1F
	PropReceiveMax           PropertyID = 0x21
	PropTopicAliasMax        PropertyID = 0x22
	PropTopicAlias           PropertyID = 0x23
	PropMaxQoS               PropertyID = 0x24
	PropRetainAvailable      PropertyID = 0x25
	PropUserProperty         PropertyID = 0x26
	PropMaxPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable PropertyID = 0x28
	PropSubIDAvailable       PropertyID = 0x29
	PropSharedSubAvailable   PropertyID = 0x2A
)

// PropertyType represents the data type of a property.
type PropertyType byte

const (
	PropertyTypeByte        PropertyType = iota + 1 // Single byte
	PropertyTypeTwoByteInt                          // Two byte integer
	PropertyTypeFourByteInt                         // Four byte integer
	PropertyTypeVarInt                              // Variable byte integer
	PropertyTypeString                              // UTF-8 encoded string
	PropertyTypeBinary                              // Binary data
	PropertyTypeStringPair                          // UTF-8 string pair
)

// willOwner stands in for the will property block in the allowed-owner masks.
// Type 0 is reserved on the wire, so it never collides with a real packet.
const willOwner = TypeReserved0

func owners(ts ...Type) uint16 {
	var m uint16
	for _, t := range ts {
		m |= 1 << t
	}
	return m
}

type propertyInfo struct {
	name   string
	kind   PropertyType
	owners uint16
}

var ackOwners = []Type{TypeConnack, TypePuback, TypePubrec, TypePubrel, TypePubcomp,
	TypeSuback, TypeUnsuback, TypeDisconnect, TypeAuth}

var propertyTable = map[PropertyID]propertyInfo{
	PropPayloadFormat:        {"Payload Format Indicator", PropertyTypeByte, owners(TypePublish, willOwner)},
	PropMessageExpiry:        {"Message Expiry Interval", PropertyTypeFourByteInt, owners(TypePublish, willOwner)},
	PropContentType:          {"Content Type", PropertyTypeString, owners(TypePublish, willOwner)},
	PropResponseTopic:        {"Response Topic", PropertyTypeString, owners(TypePublish, willOwner)},
	PropCorrelationData:      {"Correlation Data", PropertyTypeBinary, owners(TypePublish, willOwner)},
	PropSubscriptionID:       {"Subscription Identifier", PropertyTypeVarInt, owners(TypePublish, TypeSubscribe)},
	PropSessionExpiry:        {"Session Expiry Interval", PropertyTypeFourByteInt, owners(TypeConnect, TypeConnack, TypeDisconnect)},
	PropAssignedClientID:     {"Assigned Client Identifier", PropertyTypeString, owners(TypeConnack)},
	PropServerKeepAlive:      {"Server Keep Alive", PropertyTypeTwoByteInt, owners(TypeConnack)},
	PropAuthMethod:           {"Authentication Method", PropertyTypeString, owners(TypeConnect, TypeConnack, TypeAuth)},
	PropAuthData:             {"Authentication Data", PropertyTypeBinary, owners(TypeConnect, TypeConnack, TypeAuth)},
	PropRequestProblemInfo:   {"Request Problem Information", PropertyTypeByte, owners(TypeConnect)},
	PropWillDelayInterval:    {"Will Delay Interval", PropertyTypeFourByteInt, owners(willOwner)},
	PropRequestResponseInfo:  {"Request Response Information", PropertyTypeByte, owners(TypeConnect)},
	PropResponseInfo:         {"Response Information", PropertyTypeString, owners(TypeConnack)},
	PropServerReference:      {"Server Reference", PropertyTypeString, owners(TypeConnack, TypeDisconnect)},
	PropReasonString:         {"Reason String", PropertyTypeString, owners(ackOwners...)},
	PropReceiveMax:           {"Receive Maximum", PropertyTypeTwoByteInt, owners(TypeConnect, TypeConnack)},
	PropTopicAliasMax:        {"Topic Alias Maximum", PropertyTypeTwoByteInt, owners(TypeConnect, TypeConnack)},
	PropTopicAlias:           {"Topic Alias", PropertyTypeTwoByteInt, owners(TypePublish)},
	PropMaxQoS:               {"Maximum QoS", PropertyTypeByte, owners(TypeConnack)},
	PropRetainAvailable:      {"Retain Available", PropertyTypeByte, owners(TypeConnack)},
	PropUserProperty:         {"User Property", PropertyTypeStringPair, 0xFFFF},
	PropMaxPacketSize:        {"Maximum Packet Size", PropertyTypeFourByteInt, owners(TypeConnect, TypeConnack)},
	PropWildcardSubAvailable: {"Wildcard Subscription Available", PropertyTypeByte, owners(TypeConnack)},
	PropSubIDAvailable:       {"Subscription Identifier Available", PropertyTypeByte, owners(TypeConnack)},
	PropSharedSubAvailable:   {"Shared Subscription Available", PropertyTypeByte, owners(TypeConnack)},
}

// Type returns the data type for a property identifier, or 0 if unknown.
func (p PropertyID) Type() PropertyType {
	return propertyTable[p].kind
}

// String returns the name of the property.
func (p PropertyID) String() string {
	if info, ok := propertyTable[p]; ok {
		return info.name
	}
	return fmt.Sprintf("Unknown Property 0x%02X", byte(p))
}

// AllowedIn reports whether the property may appear in packets of type t.
// TypeReserved0 denotes will properties.
func (p PropertyID) AllowedIn(t Type) bool {
	info, ok := propertyTable[p]
	return ok && info.owners&(1<<t) != 0
}

// StringPair represents a key-value pair of UTF-8 strings.
type StringPair struct {
	Key   string
	Value string
}

// Properties holds MQTT 5.0 properties for a packet. Every field is absent
// when nil, so an empty string or empty binary value is still sent.
// Encoding emits properties in ascending identifier order, with repeated
// properties in slice order; the order of a decoded block is not retained.
type Properties struct {
	PayloadFormat        *byte   // 0x01
	MessageExpiry        *uint32 // 0x02
	ContentType          *string // 0x03
	ResponseTopic        *string // 0x08
	CorrelationData      []byte  // 0x09
	SessionExpiry        *uint32 // 0x11
	AssignedClientID     *string // 0x12
	ServerKeepAlive      *uint16 // 0x13
	AuthMethod           *string // 0x15
	AuthData             []byte  // 0x16
	RequestProblemInfo   *byte   // 0x17
	WillDelayInterval    *uint32 // 0x18
	RequestResponseInfo  *byte   // 0x19
	ResponseInfo         *string // 0x1A
	ServerReference      *string // 0x1C
	ReasonString         *string // 0x1F
	ReceiveMax           *uint16 // 0x21
	TopicAliasMax        *uint16 // 0x22
	TopicAlias           *uint16 // 0x23
	MaxQoS               *byte   // 0x24
	RetainAvailable      *byte   // 0x25
	MaxPacketSize        *uint32 // 0x27
	WildcardSubAvailable *byte   // 0x28
	SubIDAvailable       *byte   // 0x29
	SharedSubAvailable   *byte   // 0x2A

	// Repeatable properties, kept in wire order.
	SubscriptionIDs []uint32     // 0x0B
	UserProperties  []StringPair // 0x26
}

// Empty reports whether no property is set. A nil receiver is empty.
func (p *Properties) Empty() bool {
	return p == nil || p.count() == 0
}

func (p *Properties) count() int {
	n := len(p.SubscriptionIDs) + len(p.UserProperties)
	p.each(func(PropertyID) { n++ })
	return n
}

// each calls fn for every set single-valued property in encoding order.
func (p *Properties) each(fn func(PropertyID)) {
	set := func(ok bool, id PropertyID) {
		if ok {
			fn(id)
		}
	}
	set(p.PayloadFormat != nil, PropPayloadFormat)
	set(p.MessageExpiry != nil, PropMessageExpiry)
	set(p.ContentType != nil, PropContentType)
	set(p.ResponseTopic != nil, PropResponseTopic)
	set(p.CorrelationData != nil, PropCorrelationData)
	set(p.SessionExpiry != nil, PropSessionExpiry)
	set(p.AssignedClientID != nil, PropAssignedClientID)
	set(p.ServerKeepAlive != nil, PropServerKeepAlive)
	set(p.AuthMethod != nil, PropAuthMethod)
	set(p.AuthData != nil, PropAuthData)
	set(p.RequestProblemInfo != nil, PropRequestProblemInfo)
	set(p.WillDelayInterval != nil, PropWillDelayInterval)
	set(p.RequestResponseInfo != nil, PropRequestResponseInfo)
	set(p.ResponseInfo != nil, PropResponseInfo)
	set(p.ServerReference != nil, PropServerReference)
	set(p.ReasonString != nil, PropReasonString)
	set(p.ReceiveMax != nil, PropReceiveMax)
	set(p.TopicAliasMax != nil, PropTopicAliasMax)
	set(p.TopicAlias != nil, PropTopicAlias)
	set(p.MaxQoS != nil, PropMaxQoS)
	set(p.RetainAvailable != nil, PropRetainAvailable)
	set(p.MaxPacketSize != nil, PropMaxPacketSize)
	set(p.WildcardSubAvailable != nil, PropWildcardSubAvailable)
	set(p.SubIDAvailable != nil, PropSubIDAvailable)
	set(p.SharedSubAvailable != nil, PropSharedSubAvailable)
}

func isBool(v *byte) bool { return v == nil || *v <= 1 }

// validate checks placement and value ranges for packets of type owner.
func (p *Properties) validate(owner Type) error {
	var err error
	p.each(func(id PropertyID) {
		if err == nil && !id.AllowedIn(owner) {
			err = detail(ErrPropertyNotAllowed, "%s in %s", id, ownerName(owner))
		}
	})
	if err != nil {
		return err
	}
	if len(p.SubscriptionIDs) > 0 && !PropSubscriptionID.AllowedIn(owner) {
		return detail(ErrPropertyNotAllowed, "%s in %s", PropSubscriptionID, ownerName(owner))
	}
	if owner == TypeSubscribe && len(p.SubscriptionIDs) > 1 {
		return detail(ErrDuplicateProperty, "%s", PropSubscriptionID)
	}
	for _, id := range p.SubscriptionIDs {
		if id == 0 || id > MaxRemainingLength {
			return detail(ErrInvalidPropertyValue, "%s %d", PropSubscriptionID, id)
		}
	}

	switch {
	case !isBool(p.PayloadFormat):
		return detail(ErrInvalidPropertyValue, "%s", PropPayloadFormat)
	case !isBool(p.RequestProblemInfo):
		return detail(ErrInvalidPropertyValue, "%s", PropRequestProblemInfo)
	case !isBool(p.RequestResponseInfo):
		return detail(ErrInvalidPropertyValue, "%s", PropRequestResponseInfo)
	case !isBool(p.MaxQoS):
		return detail(ErrInvalidPropertyValue, "%s", PropMaxQoS)
	case !isBool(p.RetainAvailable):
		return detail(ErrInvalidPropertyValue, "%s", PropRetainAvailable)
	case !isBool(p.WildcardSubAvailable):
		return detail(ErrInvalidPropertyValue, "%s", PropWildcardSubAvailable)
	case !isBool(p.SubIDAvailable):
		return detail(ErrInvalidPropertyValue, "%s", PropSubIDAvailable)
	case !isBool(p.SharedSubAvailable):
		return detail(ErrInvalidPropertyValue, "%s", PropSharedSubAvailable)
	case p.ReceiveMax != nil && *p.ReceiveMax == 0:
		return detail(ErrInvalidPropertyValue, "%s", PropReceiveMax)
	case p.MaxPacketSize != nil && *p.MaxPacketSize == 0:
		return detail(ErrInvalidPropertyValue, "%s", PropMaxPacketSize)
	case p.TopicAlias != nil && *p.TopicAlias == 0:
		return detail(ErrInvalidPropertyValue, "%s", PropTopicAlias)
	}
	return nil
}

func ownerName(t Type) string {
	if t == willOwner {
		return "will properties"
	}
	return t.String()
}

// appendProperties validates p for owner and appends the length-prefixed
// property block. A nil or empty p produces a single zero byte.
func appendProperties(b []byte, p *Properties, owner Type) ([]byte, error) {
	if p.Empty() {
		return append(b, 0), nil
	}
	if err := p.validate(owner); err != nil {
		return b, err
	}

	mark := len(b)
	var err error
	str := func(id PropertyID, s string) {
		if err == nil {
			b = append(b, byte(id))
			b, err = appendString(b, s)
		}
	}
	opt := func(id PropertyID, s *string) {
		if s != nil {
			str(id, *s)
		}
	}
	bin := func(id PropertyID, data []byte) {
		if err == nil {
			b = append(b, byte(id))
			b, err = appendBinary(b, data)
		}
	}
	u8 := func(id PropertyID, v *byte) {
		if v != nil {
			b = append(b, byte(id), *v)
		}
	}
	u16 := func(id PropertyID, v *uint16) {
		if v != nil {
			b = appendUint16(append(b, byte(id)), *v)
		}
	}
	u32 := func(id PropertyID, v *uint32) {
		if v != nil {
			b = appendUint32(append(b, byte(id)), *v)
		}
	}

	u8(PropPayloadFormat, p.PayloadFormat)
	u32(PropMessageExpiry, p.MessageExpiry)
	opt(PropContentType, p.ContentType)
	opt(PropResponseTopic, p.ResponseTopic)
	if p.CorrelationData != nil {
		bin(PropCorrelationData, p.CorrelationData)
	}
	for _, id := range p.SubscriptionIDs {
		b, _ = AppendVarInt(append(b, byte(PropSubscriptionID)), id)
	}
	u32(PropSessionExpiry, p.SessionExpiry)
	opt(PropAssignedClientID, p.AssignedClientID)
	u16(PropServerKeepAlive, p.ServerKeepAlive)
	opt(PropAuthMethod, p.AuthMethod)
	if p.AuthData != nil {
		bin(PropAuthData, p.AuthData)
	}
	u8(PropRequestProblemInfo, p.RequestProblemInfo)
	u32(PropWillDelayInterval, p.WillDelayInterval)
	u8(PropRequestResponseInfo, p.RequestResponseInfo)
	opt(PropResponseInfo, p.ResponseInfo)
	opt(PropServerReference, p.ServerReference)
	opt(PropReasonString, p.ReasonString)
	u16(PropReceiveMax, p.ReceiveMax)
	u16(PropTopicAliasMax, p.TopicAliasMax)
	u16(PropTopicAlias, p.TopicAlias)
	u8(PropMaxQoS, p.MaxQoS)
	u8(PropRetainAvailable, p.RetainAvailable)
	for _, up := range p.UserProperties {
		str(PropUserProperty, up.Key)
		if err == nil {
			b, err = appendString(b, up.Value)
		}
	}
	u32(PropMaxPacketSize, p.MaxPacketSize)
	u8(PropWildcardSubAvailable, p.WildcardSubAvailable)
	u8(PropSubIDAvailable, p.SubIDAvailable)
	u8(PropSharedSubAvailable, p.SharedSubAvailable)
	if err != nil {
		return b[:mark], err
	}
	return insertVarInt(b, mark)
}

// readProperties decodes a length-prefixed property block for owner.
// An empty block yields nil; callers decoding an optional block that was
// present substitute an empty Properties.
func (d *decoder) readProperties(owner Type) (*Properties, error) {
	length, err := d.readVarInt()
	if err != nil {
		return nil, err
	}
	if int(length) > d.remaining() {
		return nil, ErrTruncated
	}
	if length == 0 {
		return nil, nil
	}

	sub := decoder{buf: d.buf[d.pos : d.pos+int(length)], intern: d.intern}
	d.pos += int(length)

	p := &Properties{}
	seen := make(map[PropertyID]bool, 4)
	for !sub.done() {
		raw, err := sub.readVarInt()
		if err != nil {
			return nil, err
		}
		id := PropertyID(raw)
		if raw > 0xFF || id.Type() == 0 {
			return nil, detail(ErrInvalidPropertyID, "0x%02X", raw)
		}
		if id != PropUserProperty && id != PropSubscriptionID {
			if seen[id] {
				return nil, detail(ErrDuplicateProperty, "%s", id)
			}
			seen[id] = true
		}
		if err := sub.readProperty(p, id); err != nil {
			return nil, err
		}
	}
	if err := p.validate(owner); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *decoder) readProperty(p *Properties, id PropertyID) error {
	var err error
	u8 := func(dst **byte) {
		var v byte
		if v, err = d.readByte(); err == nil {
			*dst = &v
		}
	}
	u16 := func(dst **uint16) {
		var v uint16
		if v, err = d.readUint16(); err == nil {
			*dst = &v
		}
	}
	u32 := func(dst **uint32) {
		var v uint32
		if v, err = d.readUint32(); err == nil {
			*dst = &v
		}
	}
	str := func(dst **string) {
		var v string
		if v, err = d.readString(); err == nil {
			*dst = &v
		}
	}
	bin := func(dst *[]byte) {
		*dst, err = d.readBinary()
	}

	switch id {
	case PropPayloadFormat:
		u8(&p.PayloadFormat)
	case PropMessageExpiry:
		u32(&p.MessageExpiry)
	case PropContentType:
		str(&p.ContentType)
	case PropResponseTopic:
		str(&p.ResponseTopic)
	case PropCorrelationData:
		bin(&p.CorrelationData)
	case PropSubscriptionID:
		var v uint32
		if v, err = d.readVarInt(); err == nil {
			p.SubscriptionIDs = append(p.SubscriptionIDs, v)
		}
	case PropSessionExpiry:
		u32(&p.SessionExpiry)
	case PropAssignedClientID:
		str(&p.AssignedClientID)
	case PropServerKeepAlive:
		u16(&p.ServerKeepAlive)
	case PropAuthMethod:
		str(&p.AuthMethod)
	case PropAuthData:
		bin(&p.AuthData)
	case PropRequestProblemInfo:
		u8(&p.RequestProblemInfo)
	case PropWillDelayInterval:
		u32(&p.WillDelayInterval)
	case PropRequestResponseInfo:
		u8(&p.RequestResponseInfo)
	case PropResponseInfo:
		str(&p.ResponseInfo)
	case PropServerReference:
		str(&p.ServerReference)
	case PropReasonString:
		str(&p.ReasonString)
	case PropReceiveMax:
		u16(&p.ReceiveMax)
	case PropTopicAliasMax:
		u16(&p.TopicAliasMax)
	case PropTopicAlias:
		u16(&p.TopicAlias)
	case PropMaxQoS:
		u8(&p.MaxQoS)
	case PropRetainAvailable:
		u8(&p.RetainAvailable)
	case PropUserProperty:
		var pair StringPair
		if pair.Key, err = d.readString(); err == nil {
			if pair.Value, err = d.readString(); err == nil {
				p.UserProperties = append(p.UserProperties, pair)
			}
		}
	case PropMaxPacketSize:
		u32(&p.MaxPacketSize)
	case PropWildcardSubAvailable:
		u8(&p.WildcardSubAvailable)
	case PropSubIDAvailable:
		u8(&p.SubIDAvailable)
	case PropSharedSubAvailable:
		u8(&p.SharedSubAvailable)
	}
	return err
}
