package orchestrator

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/testcases"
)

func TestWorkspaceLayout(t *testing.T) {
	parent := t.TempDir()
	w, err := NewWorkspace(parent)
	require.NoError(t, err)
	for _, dir := range []string{w.Certs, w.WWW, w.Downloads, w.ServerLogs, w.ClientLogs, w.SimLogs} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, w.Root, filepath.Dir(dir))
	}
	assert.Equal(t, filepath.Join(w.SimLogs, "trace_node_right.pcap"), w.ServerSideCapture())
	assert.Equal(t, filepath.Join(w.SimLogs, "trace_node_left.pcap"), w.ClientSideCapture())

	require.NoError(t, w.Remove())
	_, err = os.Stat(w.Root)
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateFiles(t *testing.T) {
	w, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	names := []string{"aaaaaaaaaa", "aaaaaaaaaa", "bbbbbbbbbb"}
	next := func(n int) string {
		name := names[0]
		names = names[1:]
		return name
	}
	files, err := w.GenerateFiles([]int{10, 2048}, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa", "bbbbbbbbbb"}, files)

	info, err := os.Stat(filepath.Join(w.WWW, "bbbbbbbbbb"))
	require.NoError(t, err)
	assert.Equal(t, int64(2048), info.Size())
}

func TestRandomToken(t *testing.T) {
	a, b := RandomToken(40), RandomToken(40)
	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}

func TestBuildEnvironmentIPv6(t *testing.T) {
	tc, _ := testcases.Lookup("ipv6")
	w := &Workspace{Certs: "/c", WWW: "/w", Downloads: "/d", ServerLogs: "/s", ClientLogs: "/cl", SimLogs: "/sim"}
	env := BuildEnvironment(EnvParams{
		Server:    registry.Implementation{Image: "srv"},
		Client:    registry.Implementation{Image: "cli"},
		TestCase:  tc,
		Workspace: w,
		Files:     []string{"f1", "f2"},
	})
	assert.Equal(t, "https://server6:443/f1 https://server6:443/f2", env["REQUESTS"])
	assert.Equal(t, "/w", env["WWW"])
	assert.Contains(t, env.List(), "CLIENT=cli")
}

func TestGenerateCertChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, GenerateCertChain(dir, 3))

	chain := readCerts(t, filepath.Join(dir, CertFile))
	require.Len(t, chain, 3)
	roots := x509.NewCertPool()
	for _, c := range readCerts(t, filepath.Join(dir, CAFile)) {
		roots.AddCert(c)
	}
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{DNSName: "server4", Roots: roots, Intermediates: intermediates})
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, KeyFile))
	assert.NoError(t, err)
}

func readCerts(t *testing.T, path string) []*x509.Certificate {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ret []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return ret
		}
		c, err := x509.ParseCertificate(block.Bytes)
		require.NoError(t, err)
		ret = append(ret, c)
	}
}
