package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePSArray(t *testing.T) {
	entries, err := parsePS([]byte(`[
		{"Name": "server", "Service": "server", "State": "running", "ExitCode": 0, "Publishers": []},
		{"Name": "client", "Service": "client", "State": "exited", "ExitCode": 127}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []psEntry{
		{Service: "server", State: "running", ExitCode: 0},
		{Service: "client", State: "exited", ExitCode: 127},
	}, entries)
}

func TestParsePSLines(t *testing.T) {
	entries, err := parsePS([]byte(`{"Service":"sim","State":"exited","ExitCode":137,"Labels":{"a":"b"}}
{"Service":"client","State":"exited","ExitCode":0}
`))
	require.NoError(t, err)
	assert.Equal(t, []psEntry{
		{Service: "sim", State: "exited", ExitCode: 137},
		{Service: "client", State: "exited", ExitCode: 0},
	}, entries)
}

func TestParsePSEmptyAndMalformed(t *testing.T) {
	entries, err := parsePS([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = parsePS([]byte(`{"Service": `))
	assert.Error(t, err)
}

func TestEmbeddedComposeFileDefinesServices(t *testing.T) {
	for _, s := range []string{ServiceSim, ServiceServer, ServiceClient, ServiceIperfServer, ServiceIperfClient} {
		assert.Contains(t, string(defaultComposeFile), "\n  "+s+":\n")
	}
}

// fakeDocker writes a shell script standing in for the docker binary.
func fakeDocker(t *testing.T, script string) string {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "docker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755)) //nolint:gosec
	return path
}

func TestFailedUpCleanupIsBounded(t *testing.T) {
	// "up" fails; "kill" and "down" hang.
	docker := fakeDocker(t, `case "$6" in
up) echo "pull access denied" >&2; exit 1 ;;
*) exec sleep 30 ;;
esac
`)
	c := &ComposeRuntime{Docker: docker, TeardownTimeout: 200 * time.Millisecond, Loggers: ldlog.NewDisabledLoggers()}

	start := time.Now()
	_, err := c.Up(context.Background(), StackSpec{Project: "test", Services: []string{ServiceServer}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull access denied")
	assert.Less(t, time.Since(start), 10*time.Second)
}
