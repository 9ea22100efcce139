package trace

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
)

// Decode parses the output of "tshark -T json". Each element of the top-level array is one
// frame; its nested layer objects are flattened so that every leaf field name maps to the list
// of values it took within the frame, whatever the nesting or repetition. Frames without a UDP
// layer are dropped.
func Decode(data []byte) (*Trace, error) {
	r := jreader.NewReader(data)
	t := &Trace{}
	for arr := r.Array(); arr.Next(); {
		fields := make(map[string][]string)
		collectFields(&r, "", fields)
		if r.Error() != nil {
			break
		}
		p, ok, err := packetFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(t.Packets)+1, err)
		}
		if ok {
			t.Packets = append(t.Packets, p)
		}
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("malformed tshark output: %w", err)
	}
	return t, nil
}

func collectFields(r *jreader.Reader, name string, out map[string][]string) {
	v := r.Any()
	switch v.Kind {
	case jreader.StringValue:
		out[name] = append(out[name], v.String)
	case jreader.NumberValue:
		out[name] = append(out[name], strconv.FormatFloat(v.Number, 'f', -1, 64))
	case jreader.BoolValue:
		out[name] = append(out[name], strconv.FormatBool(v.Bool))
	case jreader.ArrayValue:
		for v.Array.Next() {
			collectFields(r, name, out)
		}
	case jreader.ObjectValue:
		for v.Object.Next() {
			collectFields(r, string(v.Object.Name()), out)
		}
	}
}

func packetFromFields(fields map[string][]string) (Packet, bool, error) {
	srcPort, dstPort := first(fields, "udp.srcport"), first(fields, "udp.dstport")
	if srcPort == "" || dstPort == "" {
		return Packet{}, false, nil
	}
	srcIP := first(fields, "ip.src", "ipv6.src")
	dstIP := first(fields, "ip.dst", "ipv6.dst")
	src, err := addrPort(srcIP, srcPort)
	if err != nil {
		return Packet{}, false, err
	}
	dst, err := addrPort(dstIP, dstPort)
	if err != nil {
		return Packet{}, false, err
	}
	p := NewPacket(atoi(first(fields, "frame.number")), src, dst, 0, fields)
	if l := atoi(first(fields, "udp.length")); l >= 8 {
		p.Length = l - 8
	}
	p.Time, _ = strconv.ParseFloat(first(fields, "frame.time_relative"), 64)
	return p, true, nil
}

func addrPort(ip, port string) (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid address %q: %w", ip, err)
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port %q: %w", port, err)
	}
	return netip.AddrPortFrom(addr, uint16(n)), nil
}

func first(fields map[string][]string, names ...string) string {
	for _, n := range names {
		if v := fields[n]; len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
