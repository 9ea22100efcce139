package trace

import (
	"net/netip"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CheckPathValidation verifies that every path change of the server was validated.
//
// The server's packets are scanned in capture order. Whenever the destination of a packet
// differs from the destination of the packet before it, the server migrated to a new path, and
// that first packet on the new path must carry a PATH_CHALLENGE frame. The check stops at the
// first packet that violates this. A migration back to an earlier path counts again.
//
// Separately, the set of challenge values sent by the server must be equal to the set of
// response values sent by the client. Only the sets are compared, not their order or the number
// of repetitions.
//
// It returns the number of migrations observed.
func CheckPathValidation(fromServer, fromClient []Packet) (int, error) {
	if len(fromServer) == 0 {
		return 0, Violation("no packets sent by the server")
	}

	migrations := 0
	dsts := map[netip.AddrPort]struct{}{fromServer[0].Dst: {}}
	last := fromServer[0].Dst
	for _, p := range fromServer[1:] {
		if p.Dst == last {
			continue
		}
		migrations++
		if len(p.PathChallenges()) == 0 {
			return migrations, Violation("first server packet on new path %s (frame %d) did not contain a PATH_CHALLENGE",
				p.Dst, p.Number)
		}
		dsts[p.Dst] = struct{}{}
		last = p.Dst
	}
	if len(dsts) < 2 {
		return migrations, Violation("saw only one path: %s", last)
	}

	challenges := valueSet(fromServer, Packet.PathChallenges)
	if len(challenges) == 0 {
		return migrations, Violation("server did not send any PATH_CHALLENGE")
	}
	responses := valueSet(fromClient, Packet.PathResponses)
	if !maps.Equal(challenges, responses) {
		return migrations, Violation("PATH_CHALLENGE values %v do not match PATH_RESPONSE values %v",
			sortedKeys(challenges), sortedKeys(responses))
	}
	return migrations, nil
}

func valueSet(packets []Packet, get func(Packet) []string) map[string]struct{} {
	ret := make(map[string]struct{})
	for _, p := range packets {
		for _, v := range get(p) {
			ret[v] = struct{}{}
		}
	}
	return ret
}

func sortedKeys(m map[string]struct{}) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
