package testcases

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quic-interop/interop-harness/framework"
	"github.com/quic-interop/interop-harness/trace"
)

// Traces gives access to the two captures of a run. The server side capture is taken between
// the simulator and the server, the client side capture between the client and the simulator.
// Implementations may load the captures lazily.
type Traces interface {
	ServerSide() (*trace.Trace, error)
	ClientSide() (*trace.Trace, error)
}

// StaticTraces is a Traces whose captures are already loaded.
type StaticTraces struct {
	Server *trace.Trace
	Client *trace.Trace
}

func (s StaticTraces) ServerSide() (*trace.Trace, error) {
	if s.Server == nil {
		return nil, trace.ErrNoCapture
	}
	return s.Server, nil
}

func (s StaticTraces) ClientSide() (*trace.Trace, error) {
	if s.Client == nil {
		return nil, trace.ErrNoCapture
	}
	return s.Client, nil
}

// CheckInput is what a test case gets to look at after the endpoints have exited.
type CheckInput struct {
	WWW       string
	Downloads string
	// Files are the names of the files that were generated in WWW, relative to it.
	Files    []string
	Duration time.Duration
	Traces   Traces
	Logger   framework.Logger
}

func (in *CheckInput) logf(format string, args ...interface{}) {
	if in.Logger != nil {
		in.Logger.Printf(format, args...)
	}
}

// Check decides whether a run whose endpoints both exited cleanly actually did what the test
// case requires. A nil error means success; a *trace.AssertionError describes the invariant
// that was not observed; any other error means the evidence could not be examined.
func (tc TestCase) Check(in *CheckInput) error {
	if err := checkFiles(in); err != nil {
		return err
	}
	server, err := in.Traces.ServerSide()
	if err != nil {
		return fmt.Errorf("server side trace: %w", err)
	}
	fromServer := server.FromServer()
	fromClient := server.FromClient()

	switch tc.Kind {
	case KindHandshakeLoss, KindHandshakeCorruption:
		return expectHandshakes(in, fromServer, multiconnectRuns)

	case KindResumption, KindZeroRTT:
		if err := expectHandshakes(in, fromServer, 2); err != nil {
			return err
		}
		if tc.Kind == KindResumption {
			return checkResumption(fromClient)
		}
		return checkZeroRTT(in, fromClient)
	}

	if err := expectHandshakes(in, fromServer, 1); err != nil {
		return err
	}

	switch tc.Kind {
	case KindLongRTT:
		if n := len(trace.OfType(fromClient, trace.Initial)); n < 2 {
			return trace.Violation("expected the client to retransmit its Initial, saw %d Initial packets", n)
		}
	case KindChaCha20:
		if !trace.UsesChaCha20(fromServer) {
			return trace.Violation("server did not select TLS_CHACHA20_POLY1305_SHA256")
		}
	case KindRetry:
		sawRetry, echoed := trace.RetryTokenEchoed(server)
		if !sawRetry {
			return trace.Violation("server did not send a Retry packet")
		}
		if !echoed {
			return trace.Violation("client's Initial after the Retry did not contain the token")
		}
	case KindKeyUpdate:
		return checkKeyUpdate(in, fromServer, fromClient)
	case KindECN:
		return checkECN(in)
	case KindAmplificationLimit:
		s, c := trace.AmplificationBytes(server)
		in.logf("Server sent %d bytes before address validation, client sent %d", s, c)
		if s > trace.AmplificationFactor*c {
			return trace.Violation("server sent %d bytes before the client's address was validated, limit is %d",
				s, trace.AmplificationFactor*c)
		}
	case KindIPv6:
		if !trace.AllIPv6(server.Packets) {
			return trace.Violation("not all packets were sent over IPv6")
		}
	case KindV2:
		return checkVersion2(fromServer)
	case KindMultiplexing:
		return checkStreamLimit(in, fromServer)
	case KindPortRebinding, KindAddressRebinding, KindConnectionMigration:
		// PATH_RESPONSEs are taken where the client sent them, before the simulator.
		client, err := in.Traces.ClientSide()
		if err != nil {
			return fmt.Errorf("client side trace: %w", err)
		}
		migrations, err := trace.CheckPathValidation(fromServer, client.FromClient())
		in.logf("Observed %d path migrations", migrations)
		return err
	}
	return nil
}

func expectHandshakes(in *CheckInput, fromServer []trace.Packet, expected int) error {
	n := trace.CountHandshakes(fromServer)
	in.logf("Counted %d handshake(s)", n)
	if n != expected {
		return trace.Violation("expected exactly %d handshake(s), got: %d", expected, n)
	}
	return nil
}

func checkStreamLimit(in *CheckInput, fromServer []trace.Packet) error {
	limits := trace.InitialMaxStreamsBidi(fromServer)
	in.logf("Server set bidirectional stream limits %v", limits)
	if len(limits) == 0 {
		return trace.Violation("could not find the server's initial_max_streams_bidi transport parameter")
	}
	for _, n := range limits {
		if n > trace.MaxInitialStreamsBidi {
			return trace.Violation("server set an initial bidirectional stream limit of %d, expected at most %d",
				n, trace.MaxInitialStreamsBidi)
		}
	}
	return nil
}

func checkResumption(fromClient []trace.Packet) error {
	initials := trace.OfType(fromClient, trace.Initial)
	if trace.CountWithValue(initials, trace.FieldTLSExtension, trace.TLSExtensionPreSharedKey) == 0 {
		return trace.Violation("client did not offer a pre-shared key on the second connection")
	}
	return nil
}

func checkZeroRTT(in *CheckInput, fromClient []trace.Packet) error {
	zeroRTT := trace.OfType(fromClient, trace.ZeroRTT)
	size := 0
	for _, p := range zeroRTT {
		size += p.Length
	}
	in.logf("Client sent %d 0-RTT packets (%d bytes)", len(zeroRTT), size)
	if len(zeroRTT) == 0 {
		return trace.Violation("client did not send any 0-RTT packets")
	}
	return nil
}

func checkKeyUpdate(in *CheckInput, fromServer, fromClient []trace.Packet) error {
	clientFlips := trace.KeyPhaseFlips(fromClient)
	serverFlips := trace.KeyPhaseFlips(fromServer)
	in.logf("Key phase changes: client %d, server %d", clientFlips, serverFlips)
	if clientFlips == 0 {
		return trace.Violation("client did not update its keys")
	}
	if serverFlips == 0 {
		return trace.Violation("server did not respond to the key update")
	}
	return nil
}

func checkECN(in *CheckInput) error {
	client, err := in.Traces.ClientSide()
	if err != nil {
		return fmt.Errorf("client side trace: %w", err)
	}
	server, err := in.Traces.ServerSide()
	if err != nil {
		return fmt.Errorf("server side trace: %w", err)
	}
	fromClient := client.FromClient()
	fromServer := server.FromServer()
	in.logf("ECN marked packets: client %d, server %d", trace.ECNMarked(fromClient), trace.ECNMarked(fromServer))
	switch {
	case trace.ECNMarked(fromClient) == 0:
		return trace.Violation("client did not mark any packets ECN-capable")
	case trace.ECNMarked(fromServer) == 0:
		return trace.Violation("server did not mark any packets ECN-capable")
	case !trace.ACKsECN(fromClient):
		return trace.Violation("client did not report ECN counts in its ACKs")
	case !trace.ACKsECN(fromServer):
		return trace.Violation("server did not report ECN counts in its ACKs")
	}
	return nil
}

func checkVersion2(fromServer []trace.Packet) error {
	versions := trace.AllVersions(fromServer)
	for _, v := range versions {
		if v == trace.Version2 {
			return nil
		}
	}
	return trace.Violation("server did not use QUIC v2, saw versions %v", versions)
}

// checkFiles compares every served file with its downloaded copy.
func checkFiles(in *CheckInput) error {
	if len(in.Files) == 0 {
		return nil
	}
	entries, err := os.ReadDir(in.Downloads)
	if err != nil {
		return fmt.Errorf("cannot list downloads: %w", err)
	}
	if len(entries) == 0 {
		return trace.Violation("no files were downloaded")
	}
	for _, name := range in.Files {
		served, err := os.ReadFile(filepath.Join(in.WWW, name))
		if err != nil {
			return fmt.Errorf("cannot read served file: %w", err)
		}
		downloaded, err := os.ReadFile(filepath.Join(in.Downloads, name))
		if errors.Is(err, os.ErrNotExist) {
			return trace.Violation("file %s was not downloaded", name)
		}
		if err != nil {
			return fmt.Errorf("cannot read downloaded file: %w", err)
		}
		if len(served) != len(downloaded) {
			return trace.Violation("file size of %s doesn't match: original %d bytes, downloaded %d bytes",
				name, len(served), len(downloaded))
		}
		if !bytes.Equal(served, downloaded) {
			return trace.Violation("file contents of %s do not match", name)
		}
	}
	in.logf("Checked %d files", len(in.Files))
	return nil
}
