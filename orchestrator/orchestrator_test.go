package orchestrator

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quic-interop/interop-harness/framework/opt"
	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/testcases"
	"github.com/quic-interop/interop-harness/trace"
)

var (
	serverImpl = registry.Implementation{Name: "quic-go", Image: "quic-go:latest", Role: registry.RoleBoth}
	clientImpl = registry.Implementation{Name: "ngtcp2", Image: "ngtcp2:latest", Role: registry.RoleClient}
)

func oneHandshake() *trace.Trace {
	return &trace.Trace{Packets: []trace.Packet{
		trace.NewPacket(1, netip.MustParseAddrPort("193.167.100.100:443"), netip.MustParseAddrPort("193.167.0.100:5000"),
			1200, map[string][]string{trace.FieldLongPacketType: {"0"}, trace.FieldSCID: {"s1"}}),
	}}
}

func smallTest(t *testing.T, name string) testcases.TestCase {
	tc, ok := testcases.Lookup(name)
	require.True(t, ok)
	tc.FileSizes = []int{100, 200}
	tc.Timeout = time.Second
	return tc
}

type fixture struct {
	runtime *fakeRuntime
	reader  *fakeReader
	workDir string
	orch    *Orchestrator
}

func newFixture(t *testing.T, rt *fakeRuntime, reader *fakeReader) *fixture {
	workDir := t.TempDir()
	return &fixture{
		runtime: rt,
		reader:  reader,
		workDir: workDir,
		orch:    New(Config{Runtime: rt, TraceReader: reader, WorkDir: workDir}),
	}
}

// assertCleanedUp verifies the teardown property: no workspace left behind and no stack alive.
func (f *fixture) assertCleanedUp(t *testing.T) {
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace was not removed")
	assert.Equal(t, 0, f.runtime.liveStacks(), "stack was not torn down")
	for _, s := range f.runtime.stacks {
		assert.Equal(t, 1, s.downs)
	}
}

func TestRunSucceeds(t *testing.T) {
	f := newFixture(t, &fakeRuntime{copyFiles: true}, &fakeReader{server: oneHandshake()})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))

	assert.Equal(t, result.Succeeded, out.Result, "error: %v", out.Err)
	assert.NoError(t, out.Err)
	assert.False(t, out.Value.IsDefined())
	assert.NotEmpty(t, out.Output)
	assert.Equal(t, []string{serverSideCapture}, f.reader.reads)
	require.Len(t, f.runtime.stacks, 1)
	assert.True(t, f.runtime.stacks[0].stopped)
	f.assertCleanedUp(t)
}

func TestRunPassesEnvironment(t *testing.T) {
	f := newFixture(t, &fakeRuntime{copyFiles: true}, &fakeReader{server: oneHandshake()})
	tc := smallTest(t, "transferloss")
	f.orch.Run(context.Background(), serverImpl, clientImpl, tc)

	require.Len(t, f.runtime.specs, 1)
	spec := f.runtime.specs[0]
	env := spec.Env
	assert.Equal(t, "quic-go:latest", env["SERVER"])
	assert.Equal(t, "ngtcp2:latest", env["CLIENT"])
	assert.Equal(t, "transfer", env["TESTCASE_SERVER"])
	assert.Equal(t, "transfer", env["TESTCASE_CLIENT"])
	assert.Equal(t, "TEST", env["TEST_TYPE"])
	assert.Equal(t, tc.Scenario, env["SCENARIO"])
	assert.Equal(t, "/logs/keys.log", env["SSLKEYLOGFILE"])
	assert.Contains(t, env["REQUESTS"], "https://server4:443/")
	for _, k := range []string{"CERTS", "WWW", "DOWNLOADS", "SERVER_LOGS", "CLIENT_LOGS", "QLOGDIR", "VERSION"} {
		assert.NotEmpty(t, env[k], k)
	}
	assert.Equal(t, []string{ServiceSim, ServiceServer, ServiceClient}, spec.Services)
}

func TestRunTimesOut(t *testing.T) {
	f := newFixture(t, &fakeRuntime{hang: true}, &fakeReader{server: oneHandshake()})
	tc := smallTest(t, "handshake")
	tc.Timeout = 50 * time.Millisecond

	out := f.orch.Run(context.Background(), serverImpl, clientImpl, tc)
	assert.Equal(t, result.Failed, out.Result)
	assert.ErrorIs(t, out.Err, ErrTimeout)
	assert.Contains(t, out.Err.Error(), "50ms")
	assert.Empty(t, f.reader.reads)
	f.assertCleanedUp(t)
}

func TestRunInterrupted(t *testing.T) {
	f := newFixture(t, &fakeRuntime{hang: true}, &fakeReader{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out := f.orch.Run(ctx, serverImpl, clientImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	var oe *OrchestrationError
	assert.True(t, errors.As(out.Err, &oe))
	f.assertCleanedUp(t)
}

func TestRunUnsupportedClient(t *testing.T) {
	f := newFixture(t, &fakeRuntime{clientCode: 127}, &fakeReader{})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "retry"))
	assert.Equal(t, result.Unsupported, out.Result)
	assert.ErrorIs(t, out.Err, result.ErrUnsupported)
	f.assertCleanedUp(t)
}

func TestRunUnsupportedServer(t *testing.T) {
	f := newFixture(t, &fakeRuntime{serverCode: opt.Some(127)}, &fakeReader{})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "retry"))
	assert.Equal(t, result.Unsupported, out.Result)
	f.assertCleanedUp(t)
}

func TestRunClientFails(t *testing.T) {
	f := newFixture(t, &fakeRuntime{clientCode: 1}, &fakeReader{})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	var ee *ExitError
	require.True(t, errors.As(out.Err, &ee))
	assert.Equal(t, "client", ee.Role)
	f.assertCleanedUp(t)
}

func TestRunServerFailedBeforeClient(t *testing.T) {
	f := newFixture(t, &fakeRuntime{serverCode: opt.Some(2), copyFiles: true}, &fakeReader{server: oneHandshake()})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	assert.EqualError(t, out.Err, "server exited with code 2")
}

func TestRunStartFails(t *testing.T) {
	f := newFixture(t, &fakeRuntime{upErr: errors.New("image not found")}, &fakeReader{})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	var oe *OrchestrationError
	require.True(t, errors.As(out.Err, &oe))
	assert.Equal(t, "start", oe.Op)
	f.assertCleanedUp(t)
}

func TestRunRejectsWrongRoles(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, &fakeReader{})
	out := f.orch.Run(context.Background(), clientImpl, serverImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	assert.Contains(t, out.Err.Error(), "cannot be used as a server")
	assert.Empty(t, f.runtime.specs)
	f.assertCleanedUp(t)
}

func TestRunMissingTraceFails(t *testing.T) {
	f := newFixture(t, &fakeRuntime{copyFiles: true}, &fakeReader{})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	assert.ErrorIs(t, out.Err, trace.ErrNoCapture)
	f.assertCleanedUp(t)
}

func TestRunMissingDownloadFails(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, &fakeReader{server: oneHandshake()})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))
	assert.Equal(t, result.Failed, out.Result)
	var ae *trace.AssertionError
	assert.True(t, errors.As(out.Err, &ae))
}

func TestRunMeasurementYieldsValue(t *testing.T) {
	f := newFixture(t, &fakeRuntime{copyFiles: true}, &fakeReader{server: oneHandshake()})
	out := f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "goodput"))
	require.Equal(t, result.Succeeded, out.Result, "error: %v", out.Err)
	assert.True(t, out.Value.IsDefined())
	assert.Greater(t, out.Value.Value(), 0.0)
}

func TestRunCrossTrafficStartsIperf(t *testing.T) {
	f := newFixture(t, &fakeRuntime{copyFiles: true}, &fakeReader{server: oneHandshake()})
	f.orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "crosstraffic"))
	require.Len(t, f.runtime.specs, 1)
	assert.Contains(t, f.runtime.specs[0].Services, ServiceIperfServer)
	assert.Contains(t, f.runtime.specs[0].Services, ServiceIperfClient)
}

func TestRunArchivesLogs(t *testing.T) {
	rt := &fakeRuntime{copyFiles: true}
	logDir := t.TempDir()
	workDir := t.TempDir()
	orch := New(Config{Runtime: rt, TraceReader: &fakeReader{server: oneHandshake()}, WorkDir: workDir, LogDir: logDir})
	orch.Run(context.Background(), serverImpl, clientImpl, smallTest(t, "handshake"))

	base := filepath.Join(logDir, "quic-go_ngtcp2", "handshake")
	data, err := os.ReadFile(filepath.Join(base, "server", "server.log"))
	require.NoError(t, err)
	assert.Equal(t, "server output", string(data))
	data, err = os.ReadFile(filepath.Join(base, "output.txt"))
	require.NoError(t, err)
	assert.Equal(t, "compose output\n", string(data))

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckComplianceIsCached(t *testing.T) {
	rt := &fakeRuntime{endpointCode: 127}
	orch := New(Config{Runtime: rt, TraceReader: &fakeReader{}})
	require.NoError(t, orch.CheckCompliance(context.Background(), serverImpl, registry.RoleServer))
	require.NoError(t, orch.CheckCompliance(context.Background(), serverImpl, registry.RoleServer))
	assert.Equal(t, 1, rt.endpointCalls)

	require.NoError(t, orch.CheckCompliance(context.Background(), serverImpl, registry.RoleClient))
	assert.Equal(t, 2, rt.endpointCalls)
}

func TestCheckComplianceRejectsWrongExitCode(t *testing.T) {
	rt := &fakeRuntime{endpointCode: 0}
	orch := New(Config{Runtime: rt, TraceReader: &fakeReader{}})
	err := orch.CheckCompliance(context.Background(), clientImpl, registry.RoleClient)
	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrUnsupported)
	assert.Contains(t, err.Error(), "not compliant")
}

func TestClassifyExit(t *testing.T) {
	assert.NoError(t, classifyExit(0, opt.None[int]()))
	assert.NoError(t, classifyExit(0, opt.Some(0)))
	assert.ErrorIs(t, classifyExit(127, opt.Some(1)), result.ErrUnsupported)
	assert.ErrorIs(t, classifyExit(0, opt.Some(127)), result.ErrUnsupported)
	assert.EqualError(t, classifyExit(3, opt.None[int]()), "client exited with code 3")
}
