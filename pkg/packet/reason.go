package packet

import "fmt"

// ReasonCode is an MQTT 5.0 reason code, or an MQTT 3.x CONNACK return code
// or SUBACK granted QoS when the packet is encoded for an older version.
// Values below 0x80 indicate success.
// MQTT 5.0 Section 2.4
type ReasonCode byte

const (
	ReasonSuccess              ReasonCode = 0x00 // Success / Normal disconnection / Granted QoS 0
	ReasonGrantedQoS1          ReasonCode = 0x01
	ReasonGrantedQoS2          ReasonCode = 0x02
	ReasonDisconnectWithWill   ReasonCode = 0x04
	ReasonNoMatchingSubscriber ReasonCode = 0x10
	ReasonNoSubscriptionExist  ReasonCode = 0x11
	ReasonContinueAuth         ReasonCode = 0x18
	ReasonReAuthenticate       ReasonCode = 0x19

	ReasonUnspecifiedError           ReasonCode = 0x80
	ReasonMalformedPacket            ReasonCode = 0x81
	ReasonProtocolError              ReasonCode = 0x82
	ReasonImplSpecificError          ReasonCode = 0x83
	ReasonUnsupportedProtocolVersion ReasonCode = 0x84
	ReasonClientIDNotValid           ReasonCode = 0x85
	ReasonBadUserNameOrPassword      ReasonCode = 0x86
	ReasonNotAuthorized              ReasonCode = 0x87
	ReasonServerUnavailable          ReasonCode = 0x88
	ReasonServerBusy                 ReasonCode = 0x89
	ReasonBanned                     ReasonCode = 0x8A
	ReasonServerShuttingDown         ReasonCode = 0x8B
	ReasonBadAuthMethod              ReasonCode = 0x8C
	ReasonKeepAliveTimeout           ReasonCode = 0x8D
	ReasonSessionTakenOver           ReasonCode = 0x8E
	ReasonTopicFilterInvalid         ReasonCode = 0x8F
	ReasonTopicNameInvalid           ReasonCode = 0x90
	ReasonPacketIDInUse              ReasonCode = 0x91
	ReasonPacketIDNotFound           ReasonCode = 0x92
	ReasonReceiveMaxExceeded         ReasonCode = 0x93
	ReasonTopicAliasInvalid          ReasonCode = 0x94
	ReasonPacketTooLarge             ReasonCode = 0x95
	ReasonMessageRateTooHigh         ReasonCode = 0x96
	ReasonQuotaExceeded              ReasonCode = 0x97
	ReasonAdminAction                ReasonCode = 0x98
	ReasonPayloadFormatInvalid       ReasonCode = 0x99
	ReasonRetainNotSupported         ReasonCode = 0x9A
	ReasonQoSNotSupported            ReasonCode = 0x9B
	ReasonUseAnotherServer           ReasonCode = 0x9C
	ReasonServerMoved                ReasonCode = 0x9D
	ReasonSharedSubsNotSupported     ReasonCode = 0x9E
	ReasonConnectionRateExceeded     ReasonCode = 0x9F
	ReasonMaxConnectTime             ReasonCode = 0xA0
	ReasonSubIDsNotSupported         ReasonCode = 0xA1
	ReasonWildcardSubsNotSupported   ReasonCode = 0xA2
)

// MQTT 3.1.1 CONNACK return codes.
// MQTT 3.1.1 Section 3.2.2.3
const (
	ConnackAccepted                    ReasonCode = 0x00
	ConnackUnacceptableProtocolVersion ReasonCode = 0x01
	ConnackIdentifierRejected          ReasonCode = 0x02
	ConnackServerUnavailable           ReasonCode = 0x03
	ConnackBadUsernameOrPassword       ReasonCode = 0x04
	ConnackNotAuthorized               ReasonCode = 0x05
)

// SubackFailure is the MQTT 3.1.1 SUBACK failure return code.
const SubackFailure ReasonCode = 0x80

var reasonNames = map[ReasonCode]string{
	ReasonSuccess:                    "Success",
	ReasonGrantedQoS1:                "Granted QoS 1",
	ReasonGrantedQoS2:                "Granted QoS 2",
	ReasonDisconnectWithWill:         "Disconnect with Will Message",
	ReasonNoMatchingSubscriber:       "No matching subscribers",
	ReasonNoSubscriptionExist:        "No subscription existed",
	ReasonContinueAuth:               "Continue authentication",
	ReasonReAuthenticate:             "Re-authenticate",
	ReasonUnspecifiedError:           "Unspecified error",
	ReasonMalformedPacket:            "Malformed Packet",
	ReasonProtocolError:              "Protocol Error",
	ReasonImplSpecificError:          "Implementation specific error",
	ReasonUnsupportedProtocolVersion: "Unsupported Protocol Version",
	ReasonClientIDNotValid:           "Client Identifier not valid",
	ReasonBadUserNameOrPassword:      "Bad User Name or Password",
	ReasonNotAuthorized:              "Not authorized",
	ReasonServerUnavailable:          "Server unavailable",
	ReasonServerBusy:                 "Server busy",
	ReasonBanned:                     "Banned",
	ReasonServerShuttingDown:         "Server shutting down",
	ReasonBadAuthMethod:              "Bad authentication method",
	ReasonKeepAliveTimeout:           "Keep Alive timeout",
	ReasonSessionTakenOver:           "Session taken over",
	ReasonTopicFilterInvalid:         "Topic Filter invalid",
	ReasonTopicNameInvalid:           "Topic Name invalid",
	ReasonPacketIDInUse:              "Packet Identifier in use",
	ReasonPacketIDNotFound:           "Packet Identifier not found",
	ReasonReceiveMaxExceeded:         "Receive Maximum exceeded",
	ReasonTopicAliasInvalid:          "Topic Alias invalid",
	ReasonPacketTooLarge:             "Packet too large",
	ReasonMessageRateTooHigh:         "Message rate too high",
	ReasonQuotaExceeded:              "Quota exceeded",
	ReasonAdminAction:                "Administrative action",
	ReasonPayloadFormatInvalid:       "Payload format invalid",
	ReasonRetainNotSupported:         "Retain not supported",
	ReasonQoSNotSupported:            "QoS not supported",
	ReasonUseAnotherServer:           "Use another server",
	ReasonServerMoved:                "Server moved",
	ReasonSharedSubsNotSupported:     "Shared Subscriptions not supported",
	ReasonConnectionRateExceeded:     "Connection rate exceeded",
	ReasonMaxConnectTime:             "Maximum connect time",
	ReasonSubIDsNotSupported:         "Subscription Identifiers not supported",
	ReasonWildcardSubsNotSupported:   "Wildcard Subscriptions not supported",
}

// IsSuccess returns true if the reason code indicates success.
func (r ReasonCode) IsSuccess() bool {
	return r < 0x80
}

// IsError returns true if the reason code indicates an error.
func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

// String returns the MQTT 5.0 name of the reason code.
func (r ReasonCode) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Unknown reason code 0x%02X", byte(r))
}

func codeSet(codes ...ReasonCode) map[ReasonCode]bool {
	m := make(map[ReasonCode]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// MQTT 5.0 reason codes permitted per packet type (Section 2.4 table 2-6).
var reasonsByType = map[Type]map[ReasonCode]bool{
	TypeConnack: codeSet(0x00, 0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
		0x8A, 0x8C, 0x90, 0x95, 0x97, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9F),
	TypePuback:   codeSet(0x00, 0x10, 0x80, 0x83, 0x87, 0x90, 0x91, 0x97, 0x99),
	TypePubrec:   codeSet(0x00, 0x10, 0x80, 0x83, 0x87, 0x90, 0x91, 0x97, 0x99),
	TypePubrel:   codeSet(0x00, 0x92),
	TypePubcomp:  codeSet(0x00, 0x92),
	TypeSuback:   codeSet(0x00, 0x01, 0x02, 0x80, 0x83, 0x87, 0x8F, 0x91, 0x97, 0x9E, 0xA1, 0xA2),
	TypeUnsuback: codeSet(0x00, 0x11, 0x80, 0x83, 0x87, 0x8F, 0x91),
	TypeDisconnect: codeSet(0x00, 0x04, 0x80, 0x81, 0x82, 0x83, 0x87, 0x89, 0x8B, 0x8D, 0x8E,
		0x8F, 0x90, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E,
		0x9F, 0xA0, 0xA1, 0xA2),
	TypeAuth: codeSet(0x00, 0x18, 0x19),
}

var (
	connackCodesV3 = codeSet(0x00, 0x01, 0x02, 0x03, 0x04, 0x05)
	subackCodesV3  = codeSet(0x00, 0x01, 0x02, 0x80)
)

// ValidFor reports whether r may appear in a packet of type t under version v.
func (r ReasonCode) ValidFor(t Type, v Version) bool {
	if v < Version5 {
		switch t {
		case TypeConnack:
			return connackCodesV3[r]
		case TypeSuback:
			return subackCodesV3[r]
		}
		return r == ReasonSuccess
	}
	return reasonsByType[t][r]
}

func checkReason(r ReasonCode, t Type, v Version) error {
	if !r.ValidFor(t, v) {
		return detail(ErrInvalidReasonCode, "0x%02X", byte(r))
	}
	return nil
}
