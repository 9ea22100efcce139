// Package testcases defines the catalog of interop test cases and measurements. Every entry is a
// TestCase value: its Kind selects the trace checks applied after a run, and the other fields
// describe the network scenario, the files to transfer and how the endpoints are told what to do.
package testcases

import (
	"time"

	"github.com/quic-interop/interop-harness/framework/opt"
)

// TestType tells the endpoints whether they take part in a functional test or a measurement.
type TestType string

const (
	TypeTest        TestType = "TEST"
	TypeMeasurement TestType = "MEASUREMENT"
)

// Kind identifies a catalog entry. The set of kinds is closed; checks dispatch on it.
type Kind int

const (
	KindHandshake Kind = iota
	KindTransfer
	KindLongRTT
	KindChaCha20
	KindMultiplexing
	KindRetry
	KindResumption
	KindZeroRTT
	KindHTTP3
	KindBlackhole
	KindKeyUpdate
	KindECN
	KindAmplificationLimit
	KindHandshakeLoss
	KindTransferLoss
	KindHandshakeCorruption
	KindTransferCorruption
	KindIPv6
	KindV2
	KindPortRebinding
	KindAddressRebinding
	KindConnectionMigration
	KindGoodput
	KindCrossTraffic
)

// DefaultTimeout bounds a run whose test case doesn't declare its own timeout.
const DefaultTimeout = 60 * time.Second

// TestCase is one entry of the catalog.
type TestCase struct {
	Kind         Kind
	Name         string
	Abbreviation string
	Description  string
	Type         TestType
	// Scenario is the argument string of the network simulator.
	Scenario string
	Timeout  time.Duration
	// ServerName and ClientName are the test case names handed to the endpoints, when they
	// differ from Name. The server is often told "transfer" so that it cannot tell which
	// network conditions it is being tested under.
	ServerName string
	ClientName string
	// FileSizes lists the sizes in bytes of the random files the server serves and the
	// client downloads.
	FileSizes []int
	IPv6      bool
	// Version is the QUIC version the client starts with.
	Version string
	// CertChainLength is the number of certificates in the chain sent by the server.
	CertChainLength int
	// CrossTraffic starts the iperf services next to the endpoints.
	CrossTraffic bool

	// Repetitions and Unit are only meaningful for measurements.
	Repetitions int
	Unit        string
}

func (tc TestCase) String() string { return tc.Name }

func (tc TestCase) IsMeasurement() bool { return tc.Type == TypeMeasurement }

// ServerTestName returns the TESTCASE_SERVER value.
func (tc TestCase) ServerTestName() string {
	if tc.ServerName != "" {
		return tc.ServerName
	}
	return tc.Name
}

// ClientTestName returns the TESTCASE_CLIENT value.
func (tc TestCase) ClientTestName() string {
	if tc.ClientName != "" {
		return tc.ClientName
	}
	return tc.Name
}

// RunTimeout returns the bound on the client's run time.
func (tc TestCase) RunTimeout() time.Duration {
	if tc.Timeout > 0 {
		return tc.Timeout
	}
	return DefaultTimeout
}

// Runs returns how many times the entry is executed for one pair.
func (tc TestCase) Runs() int {
	if tc.IsMeasurement() && tc.Repetitions > 1 {
		return tc.Repetitions
	}
	return 1
}

// TotalFileSize is the number of payload bytes the client has to download.
func (tc TestCase) TotalFileSize() int {
	n := 0
	for _, s := range tc.FileSizes {
		n += s
	}
	return n
}

// Value computes the numeric result of one repetition of a measurement, or None for tests.
func (tc TestCase) Value(elapsed time.Duration) opt.Maybe[float64] {
	switch tc.Kind {
	case KindGoodput, KindCrossTraffic:
		ms := float64(elapsed) / float64(time.Millisecond)
		if ms <= 0 {
			return opt.None[float64]()
		}
		return opt.Some(8 * float64(tc.TotalFileSize()) / ms)
	default:
		return opt.None[float64]()
	}
}
