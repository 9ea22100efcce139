package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "quic-go": {"image": "martenseemann/quic-go-interop:latest", "url": "https://github.com/quic-go/quic-go", "role": "both"},
  "ngtcp2": {"image": "ghcr.io/ngtcp2/ngtcp2-interop:latest", "url": "https://github.com/ngtcp2/ngtcp2", "role": "both"},
  "chrome": {"image": "martenseemann/chrome-quic-interop-runner", "url": "https://github.com/marten-seemann/chrome-quic-interop-runner", "role": "client"},
  "nginx": {"image": "ghcr.io/nginx/nginx-quic-qns:latest", "url": "https://quic.nginx.org/", "role": "server"}
}`

const sampleYAML = `
quiche:
  image: cloudflare/quiche-qns:latest
  url: https://github.com/cloudflare/quiche
  role: both
go-x-net:
  image: us-central1-docker.pkg.dev/golang-interop-testing/quic/go-x-net:latest
  url: https://pkg.go.dev/golang.org/x/net/internal/quic
  role: Server
`

func TestParseJSONKeepsDeclarationOrder(t *testing.T) {
	r, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	all := r.All()
	require.Len(t, all, 4)
	assert.Equal(t, []string{"quic-go", "ngtcp2", "chrome", "nginx"},
		[]string{all[0].Name, all[1].Name, all[2].Name, all[3].Name})
	assert.Equal(t, Implementation{
		Name:  "chrome",
		Image: "martenseemann/chrome-quic-interop-runner",
		URL:   "https://github.com/marten-seemann/chrome-quic-interop-runner",
		Role:  RoleClient,
	}, all[2])
}

func TestParseYAMLNormalizesRole(t *testing.T) {
	r, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	impl, ok := r.Get("go-x-net")
	require.True(t, ok)
	assert.Equal(t, RoleServer, impl.Role)
}

func TestParseRejectsDuplicateNames(t *testing.T) {
	_, err := Parse([]byte(`{"a": {"image": "x", "role": "both"}, "a": {"image": "y", "role": "client"}}`))
	require.Error(t, err)
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	_, err := Parse([]byte(`{"a": {"image": "x", "role": "proxy"}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"a": {"role": "both"}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`["a", "b"]`))
	assert.Error(t, err)
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New(
		Implementation{Name: "a", Image: "x", Role: RoleBoth},
		Implementation{Name: "a", Image: "y", Role: RoleServer},
	)
	assert.Error(t, err)
}

func TestServersAndClientsFilterByRole(t *testing.T) {
	r, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	servers, err := r.Servers(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"quic-go", "ngtcp2", "nginx"}, names(servers))

	clients, err := r.Clients(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"quic-go", "ngtcp2", "chrome"}, names(clients))

	clients, err = r.Clients([]string{"chrome", "quic-go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"chrome", "quic-go"}, names(clients))

	_, err = r.Servers([]string{"chrome"})
	assert.Error(t, err)

	_, err = r.Clients([]string{"unknown"})
	assert.Error(t, err)
}

func TestWithImageDoesNotModifyOriginal(t *testing.T) {
	r, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	replaced, err := r.WithImage("quic-go", "quic-go:dev")
	require.NoError(t, err)

	orig, _ := r.Get("quic-go")
	updated, _ := replaced.Get("quic-go")
	assert.Equal(t, "martenseemann/quic-go-interop:latest", orig.Image)
	assert.Equal(t, "quic-go:dev", updated.Image)

	_, err = r.WithImage("nope", "x")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "implementations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0600))
	r, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, r.All(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func names(impls []Implementation) []string {
	ret := make([]string, 0, len(impls))
	for _, impl := range impls {
		ret = append(ret, impl.Name)
	}
	return ret
}
