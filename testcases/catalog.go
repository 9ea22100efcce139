package testcases

import (
	"fmt"
	"strings"
	"time"
)

const (
	KB = 1 << 10
	MB = 1 << 20
)

const (
	scenarioDefault            = "simple-p2p --delay=15ms --bandwidth=10Mbps --queue=25"
	scenarioLongRTT            = "simple-p2p --delay=750ms --bandwidth=10Mbps --queue=25"
	scenarioBlackhole          = "blackhole --delay=15ms --bandwidth=10Mbps --queue=25 --on=5s --off=2s"
	scenarioHandshakeLoss      = "drop-rate --delay=15ms --bandwidth=10Mbps --queue=25 --rate_to_server=30 --rate_to_client=30 --burst_to_server=3 --burst_to_client=3"
	scenarioTransferLoss       = "drop-rate --delay=15ms --bandwidth=10Mbps --queue=25 --rate_to_server=2 --rate_to_client=2"
	scenarioHandshakeCorrupt   = "corrupt-rate --delay=15ms --bandwidth=10Mbps --queue=25 --rate_to_server=30 --rate_to_client=30"
	scenarioTransferCorrupt    = "corrupt-rate --delay=15ms --bandwidth=10Mbps --queue=25 --rate_to_server=2 --rate_to_client=2"
	scenarioAmplificationLimit = "drop-rate --delay=15ms --bandwidth=10Mbps --queue=25 --rate_to_server=0 --rate_to_client=0 --drops_to_client=1,2,3,4,5,6,7,8,9,10"
	scenarioPortRebinding      = "rebind --delay=15ms --bandwidth=10Mbps --queue=25 --first-rebind=1s --rebind-freq=5s"
	scenarioAddressRebinding   = scenarioPortRebinding + " --rebind-addr"
)

// Number of separate connections opened by the handshake loss and corruption tests.
const multiconnectRuns = 50

func repeat(size, n int) []int {
	ret := make([]int, n)
	for i := range ret {
		ret[i] = size
	}
	return ret
}

// Tests returns the functional test cases in run order. Transfer is the baseline that gates
// the measurements of a pair.
func Tests() []TestCase {
	return []TestCase{
		{Kind: KindHandshake, Name: "handshake", Abbreviation: "H",
			Description: "Handshake completes successfully",
			FileSizes:   []int{1 * KB}},
		{Kind: KindTransfer, Name: "transfer", Abbreviation: "D",
			Description: "Stream data is being sent and received correctly. Connection close completes with a zero error code.",
			FileSizes:   []int{2 * MB, 3 * MB, 5 * MB}},
		{Kind: KindLongRTT, Name: "longrtt", Abbreviation: "LR", ServerName: "transfer",
			Description: "Handshake completes when RTT is long",
			Scenario:    scenarioLongRTT, Timeout: 180 * time.Second,
			FileSizes: []int{1 * MB}},
		{Kind: KindChaCha20, Name: "chacha20", Abbreviation: "C20",
			Description: "Handshake completes using ChaCha20",
			FileSizes:   []int{3 * MB}},
		{Kind: KindMultiplexing, Name: "multiplexing", Abbreviation: "M", ServerName: "transfer",
			Description: "Thousands of files are transferred over a single connection, and server increased stream limits to accommodate client requests.",
			FileSizes:   repeat(32, 2000)},
		{Kind: KindRetry, Name: "retry", Abbreviation: "S",
			Description: "Server sends a Retry, and a subsequent connection using the Retry token completes successfully.",
			FileSizes:   []int{10 * KB}},
		{Kind: KindResumption, Name: "resumption", Abbreviation: "R",
			Description: "Connection is established using TLS Session Resumption.",
			FileSizes:   []int{5 * KB, 10 * KB}},
		{Kind: KindZeroRTT, Name: "zerortt", Abbreviation: "Z",
			Description: "0-RTT data is being sent and acted on.",
			FileSizes:   repeat(5*KB, 40)},
		{Kind: KindHTTP3, Name: "http3", Abbreviation: "3",
			Description: "An H3 transaction succeeded.",
			FileSizes:   []int{5 * KB, 10 * KB, 500 * KB}},
		{Kind: KindBlackhole, Name: "blackhole", Abbreviation: "B", ServerName: "transfer", ClientName: "transfer",
			Description: "Transfer succeeds despite underlying network blacking out for a few seconds.",
			Scenario:    scenarioBlackhole, FileSizes: []int{10 * MB}},
		{Kind: KindKeyUpdate, Name: "keyupdate", Abbreviation: "U", ServerName: "transfer",
			Description: "One of the two endpoints updates keys and the peer responds correctly.",
			FileSizes:   []int{3 * MB}},
		{Kind: KindECN, Name: "ecn", Abbreviation: "E", ServerName: "transfer", ClientName: "transfer",
			Description: "Explicit Congestion Notification is used and acknowledged.",
			FileSizes:   []int{1 * MB}},
		{Kind: KindAmplificationLimit, Name: "amplificationlimit", Abbreviation: "A", ServerName: "transfer",
			ClientName:  "transfer",
			Description: "The server obeys the 3x amplification limit.",
			Scenario:    scenarioAmplificationLimit, CertChainLength: 9,
			FileSizes: []int{5 * KB}},
		{Kind: KindHandshakeLoss, Name: "handshakeloss", Abbreviation: "L1", ServerName: "transfer",
			ClientName:  "multiconnect",
			Description: "Handshake completes under extreme packet loss.",
			Scenario:    scenarioHandshakeLoss, Timeout: 300 * time.Second,
			FileSizes: repeat(1*KB, multiconnectRuns)},
		{Kind: KindTransferLoss, Name: "transferloss", Abbreviation: "L2", ServerName: "transfer", ClientName: "transfer",
			Description: "Transfer completes under moderate packet loss.",
			Scenario:    scenarioTransferLoss, FileSizes: []int{1 * MB, 1 * MB, 1 * MB}},
		{Kind: KindHandshakeCorruption, Name: "handshakecorruption", Abbreviation: "C1", ServerName: "transfer",
			ClientName:  "multiconnect",
			Description: "Handshake completes under extreme packet corruption.",
			Scenario:    scenarioHandshakeCorrupt, Timeout: 300 * time.Second,
			FileSizes: repeat(1*KB, multiconnectRuns)},
		{Kind: KindTransferCorruption, Name: "transfercorruption", Abbreviation: "C2", ServerName: "transfer",
			ClientName:  "transfer",
			Description: "Transfer completes under moderate packet corruption.",
			Scenario:    scenarioTransferCorrupt, FileSizes: []int{1 * MB, 1 * MB, 1 * MB}},
		{Kind: KindIPv6, Name: "ipv6", Abbreviation: "6", ServerName: "transfer", ClientName: "transfer",
			Description: "A transfer across a v6-only network succeeded.",
			IPv6:        true, FileSizes: []int{5 * KB, 10 * KB}},
		{Kind: KindV2, Name: "v2", Abbreviation: "V2", ServerName: "transfer", ClientName: "transfer",
			Description: "Server should select QUIC v2 in compatible version negotiation.",
			Version:     "0x1", FileSizes: []int{1 * KB}},
		{Kind: KindPortRebinding, Name: "rebind-port", Abbreviation: "BP", ServerName: "transfer", ClientName: "transfer",
			Description: "Transfer completes under frequent port rebindings on the client side.",
			Scenario:    scenarioPortRebinding, FileSizes: []int{10 * MB}},
		{Kind: KindAddressRebinding, Name: "rebind-addr", Abbreviation: "BA", ServerName: "transfer", ClientName: "transfer",
			Description: "Transfer completes under frequent IP address and port rebindings on the client side.",
			Scenario:    scenarioAddressRebinding, FileSizes: []int{10 * MB}},
		{Kind: KindConnectionMigration, Name: "connectionmigration", Abbreviation: "CM",
			Description: "Client uses server's preferred address and transfer completes.",
			FileSizes:   []int{2 * MB}},
	}
}

// Measurements returns the measurements in run order.
func Measurements() []TestCase {
	return []TestCase{
		{Kind: KindGoodput, Name: "goodput", Abbreviation: "G", ServerName: "transfer", ClientName: "transfer",
			Description: "Measures connection goodput over a 10Mbps link.",
			Type:        TypeMeasurement, Repetitions: 5, Unit: "kbps",
			FileSizes: []int{10 * MB}},
		{Kind: KindCrossTraffic, Name: "crosstraffic", Abbreviation: "C", ServerName: "transfer", ClientName: "transfer",
			Description: "Measures goodput over a 10Mbps link when competing with a TCP (cubic) connection.",
			Type:        TypeMeasurement, Repetitions: 2, Unit: "kbps", CrossTraffic: true,
			Timeout: 180 * time.Second, FileSizes: []int{25 * MB}},
	}
}

// Catalog returns all tests followed by all measurements, with defaults filled in.
func Catalog() []TestCase {
	all := append(Tests(), Measurements()...)
	for i := range all {
		if all[i].Type == "" {
			all[i].Type = TypeTest
		}
		if all[i].Scenario == "" {
			all[i].Scenario = scenarioDefault
		}
		if all[i].Version == "" {
			all[i].Version = "0x1"
		}
	}
	return all
}

// Lookup finds a catalog entry by name or abbreviation.
func Lookup(nameOrAbbreviation string) (TestCase, bool) {
	for _, tc := range Catalog() {
		if tc.Name == nameOrAbbreviation || tc.Abbreviation == nameOrAbbreviation {
			return tc, true
		}
	}
	return TestCase{}, false
}

// Select parses a comma-separated list of names or abbreviations, or one of the keywords
// "onlyTests" and "onlyMeasurements". An empty list selects the whole catalog. The result
// is always in catalog order without duplicates.
func Select(list string) ([]TestCase, error) {
	switch strings.TrimSpace(list) {
	case "":
		return Catalog(), nil
	case "onlyTests":
		return filter(func(tc TestCase) bool { return !tc.IsMeasurement() }), nil
	case "onlyMeasurements":
		return filter(TestCase.IsMeasurement), nil
	}
	wanted := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		tc, ok := Lookup(item)
		if !ok {
			return nil, fmt.Errorf("unknown test case %q", item)
		}
		wanted[tc.Name] = true
	}
	return filter(func(tc TestCase) bool { return wanted[tc.Name] }), nil
}

func filter(pred func(TestCase) bool) []TestCase {
	var ret []TestCase
	for _, tc := range Catalog() {
		if pred(tc) {
			ret = append(ret, tc)
		}
	}
	return ret
}
