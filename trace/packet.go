// Package trace loads captured QUIC packet traces and provides the protocol-level checks that
// test cases run against them. Captures are decrypted and dissected by tshark; this package
// only consumes the dissector's field values.
package trace

import (
	"net/netip"
	"strings"
)

// ServerPort is the UDP port every server listens on inside the simulated network.
const ServerPort = 443

// Dissector field names used by the checks.
const (
	FieldPathChallenge   = "quic.path_challenge.data"
	FieldPathResponse    = "quic.path_response.data"
	FieldLongPacketType  = "quic.long.packet_type"
	FieldLongPacketType2 = "quic.long.packet_type_v2"
	FieldHeaderForm      = "quic.header_form"
	FieldVersion         = "quic.version"
	FieldSCID            = "quic.scid"
	FieldTokenLength     = "quic.token_length"
	FieldKeyPhase        = "quic.key_phase"
	FieldFrameType       = "quic.frame_type"
	FieldAckECT0         = "quic.ack.ect0_count"
	FieldAckECT1         = "quic.ack.ect1_count"
	FieldAckECNCE        = "quic.ack.ecn_ce_count"
	FieldTLSHandshake    = "tls.handshake.type"
	FieldTLSCipherSuite  = "tls.handshake.ciphersuite"
	FieldTLSExtension    = "tls.handshake.extension.type"
	FieldMaxStreamsBidi  = "tls.quic.parameter.initial_max_streams_bidi"
	FieldIPv4ECN         = "ip.dsfield.ecn"
	FieldIPv6ECN         = "ipv6.tclass.ecn"
)

// QUIC versions as printed by the dissector.
const (
	Version1 = "0x00000001"
	Version2 = "0x6b3343cf"
)

// PacketType is the type of a QUIC packet, normalized across versions 1 and 2.
type PacketType string

const (
	Initial   PacketType = "initial"
	ZeroRTT   PacketType = "0rtt"
	Handshake PacketType = "handshake"
	Retry     PacketType = "retry"
	OneRTT    PacketType = "1rtt"
)

var longTypesV1 = map[string]PacketType{"0": Initial, "1": ZeroRTT, "2": Handshake, "3": Retry} //nolint:gochecknoglobals
var longTypesV2 = map[string]PacketType{"1": Initial, "2": ZeroRTT, "3": Handshake, "0": Retry} //nolint:gochecknoglobals

// Packet is one UDP datagram of a capture. A datagram may carry several coalesced QUIC
// packets, so every field can have multiple values.
type Packet struct {
	Number int
	Time   float64
	Src    netip.AddrPort
	Dst    netip.AddrPort
	// Length is the UDP payload length in bytes.
	Length int
	fields map[string][]string
}

// NewPacket builds a Packet from already dissected field values.
func NewPacket(number int, src, dst netip.AddrPort, length int, fields map[string][]string) Packet {
	if fields == nil {
		fields = make(map[string][]string)
	}
	return Packet{Number: number, Src: src, Dst: dst, Length: length, fields: fields}
}

// Values returns every value of a dissector field, in dissection order.
func (p Packet) Values(field string) []string {
	return p.fields[field]
}

func (p Packet) Has(field string) bool {
	return len(p.fields[field]) > 0
}

// HasValue returns true if any value of field equals value.
func (p Packet) HasValue(field, value string) bool {
	for _, v := range p.fields[field] {
		if v == value {
			return true
		}
	}
	return false
}

func (p Packet) PathChallenges() []string { return p.fields[FieldPathChallenge] }

func (p Packet) PathResponses() []string { return p.fields[FieldPathResponse] }

// Types returns the types of all QUIC packets coalesced in this datagram.
func (p Packet) Types() []PacketType {
	var ret []PacketType
	for _, v := range p.fields[FieldLongPacketType] {
		if t, ok := longTypesV1[v]; ok {
			ret = append(ret, t)
		}
	}
	for _, v := range p.fields[FieldLongPacketType2] {
		if t, ok := longTypesV2[v]; ok {
			ret = append(ret, t)
		}
	}
	for _, v := range p.fields[FieldHeaderForm] {
		if v == "0" {
			ret = append(ret, OneRTT)
		}
	}
	return ret
}

func (p Packet) Is(t PacketType) bool {
	for _, pt := range p.Types() {
		if pt == t {
			return true
		}
	}
	return false
}

// KeyPhases returns the key phase bits of the short header packets in this datagram.
func (p Packet) KeyPhases() []bool {
	var ret []bool
	for _, v := range p.fields[FieldKeyPhase] {
		ret = append(ret, isTrue(v))
	}
	return ret
}

// ECN returns the ECN codepoint of the IP header, or "" if none was dissected.
func (p Packet) ECN() string {
	if v := p.fields[FieldIPv4ECN]; len(v) > 0 {
		return v[0]
	}
	if v := p.fields[FieldIPv6ECN]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// Trace is a time-ordered list of packets from one capture point.
type Trace struct {
	Packets []Packet
}

// FromServer returns the packets sent by the server, in capture order.
func (t *Trace) FromServer() []Packet {
	return t.filter(func(p Packet) bool { return p.Src.Port() == ServerPort })
}

// FromClient returns the packets sent to the server, in capture order.
func (t *Trace) FromClient() []Packet {
	return t.filter(func(p Packet) bool { return p.Dst.Port() == ServerPort })
}

func (t *Trace) filter(pred func(Packet) bool) []Packet {
	var ret []Packet
	for _, p := range t.Packets {
		if pred(p) {
			ret = append(ret, p)
		}
	}
	return ret
}

// OfType filters packets down to those containing a QUIC packet of type pt.
func OfType(packets []Packet, pt PacketType) []Packet {
	var ret []Packet
	for _, p := range packets {
		if p.Is(pt) {
			ret = append(ret, p)
		}
	}
	return ret
}
