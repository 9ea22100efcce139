package trace

import (
	"strconv"
)

// TLS values checked by the test cases.
const (
	TLSHandshakeCertificate  = "11"
	TLSExtensionPreSharedKey = "41"
	TLSChaCha20Poly1305      = "0x1303"
	TLSChaCha20Poly1305Dec   = "4867"
)

// ECN codepoints as dissected from the IP header.
const (
	ECNNotECT = "0"
	ECNECT1   = "1"
	ECNECT0   = "2"
	ECNCE     = "3"
)

// MaxInitialStreamsBidi is the highest initial bidirectional stream limit a server may
// advertise in the multiplexing test, so that it has to raise the limit during the transfer.
const MaxInitialStreamsBidi = 1000

// AmplificationFactor is how many bytes a server may send per byte received from an
// unvalidated client address.
const AmplificationFactor = 3

// CountHandshakes returns the number of distinct source connection IDs the server used in its
// Initial packets, which is the number of handshakes it took part in.
func CountHandshakes(fromServer []Packet) int {
	scids := make(map[string]struct{})
	for _, p := range OfType(fromServer, Initial) {
		for _, v := range p.Values(FieldSCID) {
			scids[v] = struct{}{}
		}
	}
	return len(scids)
}

// RetryTokenEchoed reports whether the server sent a Retry and the client's first Initial after
// it carried a token.
func RetryTokenEchoed(t *Trace) (sawRetry, echoed bool) {
	for _, p := range t.Packets {
		switch {
		case p.Src.Port() == ServerPort && p.Is(Retry):
			sawRetry = true
		case sawRetry && p.Dst.Port() == ServerPort && p.Is(Initial):
			for _, v := range p.Values(FieldTokenLength) {
				if n, _ := strconv.Atoi(v); n > 0 {
					return true, true
				}
			}
			return true, false
		}
	}
	return sawRetry, false
}

// InitialMaxStreamsBidi returns every initial_max_streams_bidi transport parameter value sent
// in the server's Handshake packets.
func InitialMaxStreamsBidi(fromServer []Packet) []int {
	var ret []int
	for _, p := range OfType(fromServer, Handshake) {
		for _, v := range p.Values(FieldMaxStreamsBidi) {
			if n, err := strconv.Atoi(v); err == nil {
				ret = append(ret, n)
			}
		}
	}
	return ret
}

// CountWithValue returns how many packets have field set to value at least once.
func CountWithValue(packets []Packet, field, value string) int {
	n := 0
	for _, p := range packets {
		if p.HasValue(field, value) {
			n++
		}
	}
	return n
}

// UsesChaCha20 reports whether the server selected ChaCha20-Poly1305 in any ServerHello.
func UsesChaCha20(fromServer []Packet) bool {
	return CountWithValue(fromServer, FieldTLSCipherSuite, TLSChaCha20Poly1305) > 0 ||
		CountWithValue(fromServer, FieldTLSCipherSuite, TLSChaCha20Poly1305Dec) > 0
}

// KeyPhaseFlips counts the transitions of the key phase bit across the short header packets.
func KeyPhaseFlips(packets []Packet) int {
	flips := 0
	var last *bool
	for _, p := range packets {
		for _, kp := range p.KeyPhases() {
			kp := kp
			if last != nil && *last != kp {
				flips++
			}
			last = &kp
		}
	}
	return flips
}

// ECNMarked counts the packets whose IP header carries ECT(0), ECT(1) or CE.
func ECNMarked(packets []Packet) int {
	n := 0
	for _, p := range packets {
		switch p.ECN() {
		case ECNECT0, ECNECT1, ECNCE:
			n++
		}
	}
	return n
}

// ACKsECN reports whether any ACK frame in packets reported a non-zero ECN count.
func ACKsECN(packets []Packet) bool {
	for _, p := range packets {
		for _, field := range []string{FieldAckECT0, FieldAckECT1, FieldAckECNCE} {
			for _, v := range p.Values(field) {
				if n, _ := strconv.Atoi(v); n > 0 {
					return true
				}
			}
		}
	}
	return false
}

// AmplificationBytes sums the payload bytes sent by each side until the first Handshake packet
// from the client, which validates the client's address.
func AmplificationBytes(t *Trace) (serverBytes, clientBytes int) {
	for _, p := range t.Packets {
		if p.Dst.Port() == ServerPort {
			if p.Is(Handshake) {
				return serverBytes, clientBytes
			}
			clientBytes += p.Length
		} else if p.Src.Port() == ServerPort {
			serverBytes += p.Length
		}
	}
	return serverBytes, clientBytes
}

// AllVersions returns the distinct QUIC versions seen in long headers.
func AllVersions(packets []Packet) []string {
	var ret []string
	seen := make(map[string]bool)
	for _, p := range packets {
		for _, v := range p.Values(FieldVersion) {
			if !seen[v] && v != "0x00000000" {
				seen[v] = true
				ret = append(ret, v)
			}
		}
	}
	return ret
}

// AllIPv6 reports whether every packet was sent over IPv6.
func AllIPv6(packets []Packet) bool {
	for _, p := range packets {
		if !p.Src.Addr().Is6() || p.Src.Addr().Is4In6() {
			return false
		}
	}
	return len(packets) > 0
}
