package packet

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func ptr[T any](v T) *T { return &v }

// decodeOne decodes exactly one packet from frame and clears the recorded
// remaining length so the result compares equal to a hand-built value.
func decodeOne(t *testing.T, frame []byte, v Version) Packet {
	t.Helper()
	pkts, err := ParseAll(frame, v)
	if err != nil {
		t.Fatalf("ParseAll(% X): %v", frame, err)
	}
	if len(pkts) != 1 {
		t.Fatalf("ParseAll decoded %d packets, want 1", len(pkts))
	}
	if got := pkts[0].RemainingLength(); got != len(frame)-1-VarIntSize(uint32(got)) {
		t.Errorf("RemainingLength = %d for a %d byte frame", got, len(frame))
	}
	pkts[0].setRemainingLength(0)
	return pkts[0]
}

func TestWireFixtures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version Version
		packet  Packet
		wire    []byte
	}{
		{
			name:    "publish qos0",
			version: Version311,
			packet:  &Publish{Topic: "test", Payload: []byte("test")},
			wire:    []byte{48, 10, 0, 4, 't', 'e', 's', 't', 't', 'e', 's', 't'},
		},
		{
			name:    "connect 3.1.1",
			version: Version311,
			packet: &Connect{
				ProtocolName: "MQTT", ProtocolVersion: Version311,
				CleanStart: true, KeepAlive: 60, ClientID: "c",
			},
			wire: []byte{0x10, 13, 0, 4, 'M', 'Q', 'T', 'T', 4, 0x02, 0, 60, 0, 1, 'c'},
		},
		{
			name:    "connect 3.1 bridge",
			version: Version31,
			packet: &Connect{
				ProtocolName: "MQIsdp", ProtocolVersion: Version31, Bridge: true,
				ClientID: "b",
			},
			wire: []byte{0x10, 15, 0, 6, 'M', 'Q', 'I', 's', 'd', 'p', 0x83, 0x00, 0, 0, 0, 1, 'b'},
		},
		{
			name:    "subscribe",
			version: Version311,
			packet: &Subscribe{
				PacketID:      1,
				Subscriptions: []Subscription{{Topic: "a/b", QoS: QoS1}},
			},
			wire: []byte{0x82, 8, 0, 1, 0, 3, 'a', '/', 'b', 1},
		},
		{
			name:    "pubrel",
			version: Version311,
			packet:  &Pubrel{PacketID: 258},
			wire:    []byte{0x62, 2, 1, 2},
		},
		{
			name:    "puback 5.0 short form",
			version: Version5,
			packet:  &Puback{PacketID: 7},
			wire:    []byte{0x40, 2, 0, 7},
		},
		{
			name:    "puback 5.0 reason only",
			version: Version5,
			packet:  &Puback{PacketID: 7, ReasonCode: ReasonNoMatchingSubscriber},
			wire:    []byte{0x40, 3, 0, 7, 0x10},
		},
		{
			name:    "puback 5.0 empty property block",
			version: Version5,
			packet:  &Puback{PacketID: 1, Properties: &Properties{}},
			wire:    []byte{0x40, 4, 0, 1, 0, 0},
		},
		{
			name:    "disconnect 5.0 empty property block",
			version: Version5,
			packet:  &Disconnect{Properties: &Properties{}},
			wire:    []byte{0xE0, 2, 0, 0},
		},
		{
			name:    "auth 5.0 empty property block",
			version: Version5,
			packet:  &Auth{Properties: &Properties{}},
			wire:    []byte{0xF0, 2, 0, 0},
		},
		{
			name:    "publish 5.0 empty content type",
			version: Version5,
			packet:  &Publish{Topic: "a", Properties: &Properties{ContentType: ptr("")}},
			wire:    []byte{0x30, 7, 0, 1, 'a', 3, 0x03, 0, 0},
		},
		{
			name:    "disconnect 5.0 with session expiry",
			version: Version5,
			packet:  &Disconnect{Properties: &Properties{SessionExpiry: ptr(uint32(0))}},
			wire:    []byte{0xE0, 7, 0x00, 0x05, 0x11, 0, 0, 0, 0},
		},
		{
			name:    "disconnect 3.1.1",
			version: Version311,
			packet:  &Disconnect{},
			wire:    []byte{0xE0, 0},
		},
		{
			name:    "pingreq",
			version: Version311,
			packet:  &Pingreq{},
			wire:    []byte{0xC0, 0},
		},
		{
			name:    "unsuback 3.1.1",
			version: Version311,
			packet:  &Unsuback{PacketID: 9},
			wire:    []byte{0xB0, 2, 0, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.packet, tt.version)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.wire) {
				t.Fatalf("Encode = % X\nwant     % X", got, tt.wire)
			}

			decoded := decodeOne(t, tt.wire, tt.version)
			if !reflect.DeepEqual(decoded, tt.packet) {
				t.Errorf("decoded %#v\nwant    %#v", decoded, tt.packet)
			}
		})
	}
}

func TestScenarioPublishLength(t *testing.T) {
	t.Parallel()

	pkts, err := ParseAll([]byte{48, 10, 0, 4, 116, 101, 115, 116, 116, 101, 115, 116}, Version311)
	if err != nil {
		t.Fatal(err)
	}
	pub, ok := pkts[0].(*Publish)
	if !ok {
		t.Fatalf("decoded %T, want *Publish", pkts[0])
	}
	if pub.Length != 10 || pub.Topic != "test" || string(pub.Payload) != "test" ||
		pub.QoS != QoS0 || pub.Dup || pub.Retain || pub.PacketID != 0 {
		t.Errorf("unexpected publish %+v", pub)
	}
}

func roundTripPackets() map[Version][]Packet {
	v5props := &Properties{
		PayloadFormat:   ptr(byte(1)),
		MessageExpiry:   ptr(uint32(3600)),
		ContentType:     ptr("application/json"),
		ResponseTopic:   ptr("reply/here"),
		CorrelationData: []byte{1, 2, 3},
		SubscriptionIDs: []uint32{1, 268435455},
		TopicAlias:      ptr(uint16(4)),
		UserProperties:  []StringPair{{"k", "v"}, {"k", "v2"}},
	}

	common := func(v Version) []Packet {
		return []Packet{
			&Publish{Topic: "a/b", QoS: QoS1, PacketID: 10, Retain: true, Dup: true, Payload: []byte{0, 1, 2}},
			&Publish{Topic: "a/b", QoS: QoS2, PacketID: 65535, Payload: []byte("x")},
			&Puback{PacketID: 1},
			&Pubrec{PacketID: 2},
			&Pubrel{PacketID: 3},
			&Pubcomp{PacketID: 4},
			&Subscribe{PacketID: 5, Subscriptions: []Subscription{
				{Topic: "a/+", QoS: QoS0}, {Topic: "b/#", QoS: QoS2}, {Topic: "c", QoS: QoS1},
			}},
			&Unsubscribe{PacketID: 7, Topics: []string{"a/+", "b/#"}},
			&Pingreq{},
			&Pingresp{},
			&Disconnect{},
			&Connack{SessionPresent: true},
			&Connect{
				ProtocolName: protocolNameFor(v), ProtocolVersion: v, CleanStart: true, KeepAlive: 30,
				ClientID:     "client-1",
				Will:         &Will{Topic: "will/t", Payload: []byte("bye"), QoS: QoS1, Retain: true},
				UsernameFlag: true, Username: "user",
				PasswordFlag: true, Password: []byte("secret"),
			},
		}
	}

	return map[Version][]Packet{
		Version31: append(common(Version31),
			&Suback{PacketID: 6, ReasonCodes: []ReasonCode{0, 1, 2, SubackFailure}},
			&Unsuback{PacketID: 8},
			&Connack{ReasonCode: ConnackNotAuthorized},
		),
		Version311: append(common(Version311),
			&Suback{PacketID: 6, ReasonCodes: []ReasonCode{0, 1, 2, SubackFailure}},
			&Unsuback{PacketID: 8},
		),
		Version5: append(common(Version5),
			&Publish{Topic: "a/b", QoS: QoS1, PacketID: 11, Payload: []byte("p"), Properties: v5props},
			&Publish{QoS: QoS0, Payload: []byte("aliased"), Properties: &Properties{TopicAlias: ptr(uint16(3))}},
			&Puback{PacketID: 1, ReasonCode: ReasonQuotaExceeded, Properties: &Properties{ReasonString: ptr("slow down")}},
			&Pubrel{PacketID: 3, ReasonCode: ReasonPacketIDNotFound},
			&Subscribe{PacketID: 5, Properties: &Properties{SubscriptionIDs: []uint32{42}}, Subscriptions: []Subscription{
				{Topic: "$share/g/a", QoS: QoS1, RetainAsPublished: true, RetainHandling: RetainDoNotSend},
				{Topic: "x", QoS: QoS2, NoLocal: true, RetainHandling: RetainSendIfNewSubscription},
			}},
			&Suback{PacketID: 6, ReasonCodes: []ReasonCode{ReasonGrantedQoS1, ReasonNotAuthorized}},
			&Unsuback{PacketID: 8, ReasonCodes: []ReasonCode{ReasonSuccess, ReasonNoSubscriptionExist}},
			&Connack{ReasonCode: ReasonBanned, Properties: &Properties{
				AssignedClientID: ptr("gen-1"), ServerKeepAlive: ptr(uint16(10)), ReceiveMax: ptr(uint16(20)),
				MaxQoS: ptr(byte(1)), RetainAvailable: ptr(byte(0)), MaxPacketSize: ptr(uint32(1 << 20)),
				WildcardSubAvailable: ptr(byte(1)), SubIDAvailable: ptr(byte(1)), SharedSubAvailable: ptr(byte(0)),
				TopicAliasMax: ptr(uint16(8)), ResponseInfo: ptr("resp"), ServerReference: ptr("other:1883"),
				SessionExpiry: ptr(uint32(60)), AuthMethod: ptr("SCRAM"), AuthData: []byte{9},
			}},
			&Connect{
				ProtocolName: "MQTT", ProtocolVersion: Version5, KeepAlive: 5, ClientID: "c5",
				Properties: &Properties{
					SessionExpiry: ptr(uint32(120)), RequestProblemInfo: ptr(byte(0)),
					RequestResponseInfo: ptr(byte(1)), AuthMethod: ptr("token"),
				},
				Will: &Will{
					Topic: "w", Payload: []byte{}, QoS: QoS2,
					Properties: &Properties{WillDelayInterval: ptr(uint32(30)), ContentType: ptr("text/plain")},
				},
				PasswordFlag: true, Password: []byte("no-user"),
			},
			&Disconnect{ReasonCode: ReasonServerMoved, Properties: &Properties{ServerReference: ptr("b:1883")}},
			&Auth{ReasonCode: ReasonContinueAuth, Properties: &Properties{AuthMethod: ptr("SCRAM"), AuthData: []byte("c1")}},
			&Auth{},
			&Puback{PacketID: 9, Properties: &Properties{}},
			&Pubcomp{PacketID: 9, Properties: &Properties{ReasonString: ptr("")}},
			&Disconnect{Properties: &Properties{}},
			&Publish{Topic: "r", Properties: &Properties{ResponseTopic: ptr(""), CorrelationData: []byte{}}},
		),
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for v, pkts := range roundTripPackets() {
		for _, pkt := range pkts {
			t.Run(v.String()+"/"+pkt.Type().String(), func(t *testing.T) {
				wire, err := Encode(pkt, v)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
				got := decodeOne(t, wire, v)
				if !reflect.DeepEqual(got, pkt) {
					t.Fatalf("round trip mismatch\n got %#v\nwant %#v", got, pkt)
				}

				again, err := Encode(got, v)
				if err != nil {
					t.Fatalf("re-encode: %v", err)
				}
				if !bytes.Equal(again, wire) {
					t.Errorf("re-encode differs\n got % X\nwant % X", again, wire)
				}
			})
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version Version
		packet  Packet
		want    error
	}{
		{"publish qos1 without id", Version311, &Publish{Topic: "a", QoS: QoS1}, ErrInvalidPacketID},
		{"publish qos0 with id", Version311, &Publish{Topic: "a", PacketID: 3}, ErrUnexpectedPacketID},
		{"publish qos3", Version311, &Publish{Topic: "a", QoS: 3, PacketID: 1}, ErrInvalidQoS},
		{"publish dup at qos0", Version311, &Publish{Topic: "a", Dup: true}, ErrInvalidFlags},
		{"publish wildcard topic", Version311, &Publish{Topic: "a/+"}, ErrInvalidTopic},
		{"publish empty topic", Version311, &Publish{}, ErrInvalidTopic},
		{"publish empty topic without alias", Version5, &Publish{}, ErrInvalidTopic},
		{"publish invalid utf8", Version311, &Publish{Topic: "a\xffb"}, ErrInvalidUTF8},
		{"properties under 3.1.1", Version311, &Publish{Topic: "a", Properties: &Properties{ContentType: ptr("x")}}, ErrPropertiesNotSupported},
		{"property on wrong packet", Version5, &Publish{Topic: "a", Properties: &Properties{SessionExpiry: ptr(uint32(1))}}, ErrPropertyNotAllowed},
		{"property out of range", Version5, &Publish{Topic: "a", Properties: &Properties{PayloadFormat: ptr(byte(2))}}, ErrInvalidPropertyValue},
		{"zero topic alias", Version5, &Publish{Topic: "a", Properties: &Properties{TopicAlias: ptr(uint16(0))}}, ErrInvalidPropertyValue},
		{"two subscription ids on subscribe", Version5, &Subscribe{PacketID: 1, Subscriptions: []Subscription{{Topic: "a"}}, Properties: &Properties{SubscriptionIDs: []uint32{1, 2}}}, ErrDuplicateProperty},
		{"puback without id", Version311, &Puback{}, ErrInvalidPacketID},
		{"puback reason under 3.1.1", Version311, &Puback{PacketID: 1, ReasonCode: ReasonQuotaExceeded}, ErrInvalidReasonCode},
		{"pubrel unknown reason", Version5, &Pubrel{PacketID: 1, ReasonCode: ReasonQuotaExceeded}, ErrInvalidReasonCode},
		{"subscribe empty", Version311, &Subscribe{PacketID: 1}, ErrEmptyPayload},
		{"subscribe without id", Version311, &Subscribe{Subscriptions: []Subscription{{Topic: "a"}}}, ErrInvalidPacketID},
		{"subscribe bad filter", Version311, &Subscribe{PacketID: 1, Subscriptions: []Subscription{{Topic: "a/#/b"}}}, ErrInvalidTopic},
		{"subscribe no local under 3.1.1", Version311, &Subscribe{PacketID: 1, Subscriptions: []Subscription{{Topic: "a", NoLocal: true}}}, ErrInvalidSubscribeOptions},
		{"subscribe retain handling 3", Version5, &Subscribe{PacketID: 1, Subscriptions: []Subscription{{Topic: "a", RetainHandling: 3}}}, ErrInvalidSubscribeOptions},
		{"subscribe qos3", Version311, &Subscribe{PacketID: 1, Subscriptions: []Subscription{{Topic: "a", QoS: 3}}}, ErrInvalidQoS},
		{"suback 3.1.1 bad code", Version311, &Suback{PacketID: 1, ReasonCodes: []ReasonCode{0x87}}, ErrInvalidReasonCode},
		{"suback empty", Version5, &Suback{PacketID: 1}, ErrEmptyPayload},
		{"unsubscribe empty", Version311, &Unsubscribe{PacketID: 1}, ErrEmptyPayload},
		{"unsuback codes under 3.1.1", Version311, &Unsuback{PacketID: 1, ReasonCodes: []ReasonCode{0}}, ErrInvalidReasonCode},
		{"unsuback 5.0 without codes", Version5, &Unsuback{PacketID: 1}, ErrEmptyPayload},
		{"auth under 3.1.1", Version311, &Auth{}, ErrInvalidPacketType},
		{"connect bad protocol name", Version311, &Connect{ProtocolName: "HTTP", ProtocolVersion: Version311}, ErrInvalidProtocolName},
		{"connect bad version", Version311, &Connect{ProtocolVersion: 9}, ErrInvalidProtocolVersion},
		{"connect MQIsdp at level 4", Version311, &Connect{ProtocolName: ProtocolNameMQIsdp, ProtocolVersion: Version311}, ErrInvalidProtocolName},
		{"connect MQTT at level 3", Version31, &Connect{ProtocolName: ProtocolNameMQTT, ProtocolVersion: Version31}, ErrInvalidProtocolName},
		{"connect password without username", Version311, &Connect{Password: []byte("p")}, ErrInvalidFlags},
		{"connect will qos3", Version311, &Connect{Will: &Will{Topic: "w", QoS: 3}}, ErrInvalidQoS},
		{"connect will wildcard", Version311, &Connect{Will: &Will{Topic: "w/#"}}, ErrInvalidTopic},
		{"connack 3.1.1 unknown code", Version311, &Connack{ReasonCode: 0x06}, ErrInvalidReasonCode},
		{"disconnect reason under 3.1.1", Version311, &Disconnect{ReasonCode: ReasonServerBusy}, ErrInvalidReasonCode},
		{"unsupported version", 7, &Pingreq{}, ErrInvalidProtocolVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := Append([]byte{0xAA}, tt.packet, tt.version)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Append error = %v, want %v", err, tt.want)
			}
			var encErr *EncodeError
			if !errors.As(err, &encErr) || encErr.Type != tt.packet.Type() {
				t.Errorf("error %v is not an *EncodeError for %s", err, tt.packet.Type())
			}
			if !bytes.Equal(out, []byte{0xAA}) {
				t.Errorf("dst modified on error: % X", out)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version Version
		wire    []byte
		want    error
	}{
		{"reserved type 0", Version311, []byte{0x00, 0x00}, ErrInvalidPacketType},
		{"auth under 3.1.1", Version311, []byte{0xF0, 0x00}, ErrInvalidPacketType},
		{"pubrel flags", Version311, []byte{0x60, 2, 0, 1}, ErrInvalidFlags},
		{"subscribe flags", Version311, []byte{0x80, 6, 0, 1, 0, 1, 'a', 0}, ErrInvalidFlags},
		{"pingreq flags", Version311, []byte{0xC1, 0}, ErrInvalidFlags},
		{"publish qos3", Version311, []byte{0x36, 5, 0, 1, 'a', 0, 1}, ErrInvalidQoS},
		{"publish dup qos0", Version311, []byte{0x38, 3, 0, 1, 'a'}, ErrInvalidFlags},
		{"publish qos1 zero id", Version311, []byte{0x32, 5, 0, 1, 'a', 0, 0}, ErrInvalidPacketID},
		{"publish wildcard", Version311, []byte{0x30, 3, 0, 1, '#'}, ErrInvalidTopic},
		{"puback missing id", Version311, []byte{0x40, 0}, ErrTruncated},
		{"puback zero id", Version311, []byte{0x40, 2, 0, 0}, ErrInvalidPacketID},
		{"puback trailing bytes", Version311, []byte{0x40, 3, 0, 1, 0}, ErrMalformedPacket},
		{"remaining length five bytes", Version311, []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}, ErrMalformedRemainingLength},
		{"remaining length not minimal", Version5, []byte{0xC0, 0x80, 0x00}, ErrMalformedRemainingLength},
		{"subscription id not minimal", Version5, []byte{0x30, 7, 0, 1, 'a', 3, 0x0B, 0x80, 0x00}, ErrMalformedPacket},
		{"string past body", Version311, []byte{0x30, 3, 0, 9, 'a'}, ErrTruncated},
		{"invalid utf8 topic", Version311, []byte{0x30, 4, 0, 2, 0xC3, 0x28}, ErrInvalidUTF8},
		{"null in topic", Version311, []byte{0x30, 4, 0, 2, 'a', 0}, ErrInvalidUTF8},
		{"subscribe without entries", Version311, []byte{0x82, 2, 0, 1}, ErrEmptyPayload},
		{"subscribe reserved option bits", Version311, []byte{0x82, 6, 0, 1, 0, 1, 'a', 0x04}, ErrInvalidSubscribeOptions},
		{"subscribe 5.0 reserved bits", Version5, []byte{0x82, 7, 0, 1, 0, 0, 1, 'a', 0xC0}, ErrInvalidSubscribeOptions},
		{"suback bad code", Version311, []byte{0x90, 3, 0, 1, 0x03}, ErrInvalidReasonCode},
		{"connect bad name", Version311, []byte{0x10, 10, 0, 4, 'M', 'Q', 'T', 'X', 4, 0, 0, 0}, ErrInvalidProtocolName},
		{"connect bad version", Version311, []byte{0x10, 12, 0, 4, 'M', 'Q', 'T', 'T', 6, 0, 0, 0, 0, 0}, ErrInvalidProtocolVersion},
		{"connect MQTT at level 3", Version311, []byte{0x10, 12, 0, 4, 'M', 'Q', 'T', 'T', 3, 0, 0, 0, 0, 0}, ErrInvalidProtocolName},
		{"connect MQIsdp at level 4", Version311, []byte{0x10, 14, 0, 6, 'M', 'Q', 'I', 's', 'd', 'p', 4, 0, 0, 0, 0, 0}, ErrInvalidProtocolName},
		{"connect MQIsdp at level 5", Version5, []byte{0x10, 15, 0, 6, 'M', 'Q', 'I', 's', 'd', 'p', 5, 0, 0, 0, 0, 0, 0}, ErrInvalidProtocolName},
		{"connect reserved flag", Version311, []byte{0x10, 12, 0, 4, 'M', 'Q', 'T', 'T', 4, 0x01, 0, 0, 0, 0}, ErrInvalidFlags},
		{"connect will qos without will", Version311, []byte{0x10, 12, 0, 4, 'M', 'Q', 'T', 'T', 4, 0x08, 0, 0, 0, 0}, ErrInvalidFlags},
		{"connect password without username", Version311, []byte{0x10, 12, 0, 4, 'M', 'Q', 'T', 'T', 4, 0x40, 0, 0, 0, 0}, ErrInvalidFlags},
		{"unknown property", Version5, []byte{0xE0, 3, 0, 1, 0x7F}, ErrInvalidPropertyID},
		{"duplicate property", Version5, []byte{0xE0, 12, 0, 10, 0x11, 0, 0, 0, 1, 0x11, 0, 0, 0, 2}, ErrDuplicateProperty},
		{"property value truncated", Version5, []byte{0xE0, 4, 0, 2, 0x23, 0}, ErrTruncated},
		{"topic alias on disconnect", Version5, []byte{0xE0, 5, 0, 3, 0x23, 0, 1}, ErrPropertyNotAllowed},
		{"property length past body", Version5, []byte{0xE0, 2, 0, 9}, ErrTruncated},
		{"pingresp with body", Version311, []byte{0xD0, 1, 0}, ErrMalformedPacket},
		{"disconnect body under 3.1.1", Version311, []byte{0xE0, 1, 0}, ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseAll(tt.wire, tt.version)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseAll error = %v, want %v", err, tt.want)
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("error %v is not a *DecodeError", err)
			}
			if want := Type(tt.wire[0] >> 4); decErr.Type != want {
				t.Errorf("DecodeError.Type = %s, want %s", decErr.Type, want)
			}
		})
	}
}

// Frames that are valid but not in the shortest form the encoder would pick
// for a hand-built value must still re-encode unchanged once decoded.
func TestReencodeDecodedFrames(t *testing.T) {
	t.Parallel()

	frames := []struct {
		name string
		wire []byte
	}{
		{"puback success reason", []byte{0x40, 3, 0, 1, 0}},
		{"pubrel success reason", []byte{0x62, 3, 0, 1, 0}},
		{"puback empty properties", []byte{0x40, 4, 0, 1, 0, 0}},
		{"pubrec reason string empty", []byte{0x50, 7, 0, 1, 0, 3, 0x1F, 0, 0}},
		{"disconnect success reason", []byte{0xE0, 1, 0}},
		{"disconnect empty properties", []byte{0xE0, 2, 0, 0}},
		{"auth success reason", []byte{0xF0, 1, 0}},
		{"publish empty content type", []byte{0x30, 7, 0, 1, 'a', 3, 0x03, 0, 0}},
		{"connack empty assigned id", []byte{0x20, 6, 0, 0, 3, 0x12, 0, 0}},
	}

	for _, tt := range frames {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkts, err := ParseAll(tt.wire, Version5)
			if err != nil || len(pkts) != 1 {
				t.Fatalf("ParseAll = %d packets, %v", len(pkts), err)
			}
			got, err := Encode(pkts[0], Version5)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.wire) {
				t.Errorf("Encode = % X\nwant     % X", got, tt.wire)
			}
		})
	}
}

func TestPropertiesReencodeInIdentifierOrder(t *testing.T) {
	t.Parallel()

	// Topic Alias (0x23) before Payload Format Indicator (0x01).
	wire := []byte{0x30, 9, 0, 1, 'a', 5, 0x23, 0, 1, 0x01, 1}
	want := []byte{0x30, 9, 0, 1, 'a', 5, 0x01, 1, 0x23, 0, 1}

	pkts, err := ParseAll(wire, Version5)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	got, err := Encode(pkts[0], Version5)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % X\nwant     % X", got, want)
	}
}

func TestEncodeRemainingLengthBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates over 1 GiB")
	}

	// Topic "a" takes 3 bytes of the body under 3.1.1 at QoS 0.
	pub := &Publish{Topic: "a", Payload: make([]byte, MaxRemainingLength-3)}
	wire, err := Encode(pub, Version311)
	if err != nil {
		t.Fatalf("Encode at maximum: %v", err)
	}
	if len(wire) != MaxFrameSize {
		t.Fatalf("frame is %d bytes, want %d", len(wire), MaxFrameSize)
	}
	if !bytes.Equal(wire[1:5], []byte{0xFF, 0xFF, 0xFF, 0x7F}) {
		t.Errorf("remaining length bytes = % X", wire[1:5])
	}
	pkts, err := ParseAll(wire, Version311)
	if err != nil {
		t.Fatalf("ParseAll at maximum: %v", err)
	}
	if got := pkts[0].RemainingLength(); got != MaxRemainingLength {
		t.Errorf("RemainingLength = %d, want %d", got, MaxRemainingLength)
	}
	if got := pkts[0].(*Publish); got.Topic != "a" || len(got.Payload) != MaxRemainingLength-3 {
		t.Errorf("decoded topic %q with %d payload bytes", got.Topic, len(got.Payload))
	}
	wire, pkts = nil, nil

	pub.Payload = append(pub.Payload, 0)
	_, err = Encode(pub, Version311)
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("Encode past maximum error = %v, want ErrPacketTooLarge", err)
	}
	var encErr *EncodeError
	if !errors.As(err, &encErr) || encErr.Type != TypePublish {
		t.Errorf("error %v is not an *EncodeError for PUBLISH", err)
	}
}

func TestEmptyPropertiesDecodeAsNil(t *testing.T) {
	t.Parallel()

	wire, err := Encode(&Publish{Topic: "a", Properties: &Properties{}}, Version5)
	if err != nil {
		t.Fatal(err)
	}
	pub := decodeOne(t, wire, Version5).(*Publish)
	if pub.Properties != nil {
		t.Errorf("Properties = %+v, want nil", pub.Properties)
	}
}
