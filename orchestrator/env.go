package orchestrator

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/testcases"
)

// Environment is the set of variables handed to the container stack.
type Environment map[string]string

// List returns the variables as sorted KEY=value strings.
func (e Environment) List() []string {
	keys := maps.Keys(e)
	slices.Sort(keys)
	ret := make([]string, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, k+"="+e[k])
	}
	return ret
}

// TokenSource returns an unpredictable lowercase alphanumeric string of length n.
type TokenSource func(n int) string

// RandomToken is the default TokenSource.
func RandomToken(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}

// Paths of the log files inside the endpoint containers.
const (
	containerKeylogFile = "/logs/keys.log"
	containerQlogDir    = "/logs/qlog/"
)

// EnvParams is everything the environment of one run depends on.
type EnvParams struct {
	Server    registry.Implementation
	Client    registry.Implementation
	TestCase  testcases.TestCase
	Workspace *Workspace
	// Files are the names of the payload files in the workspace's www directory.
	Files []string
}

// BuildEnvironment assembles the variables for one run.
func BuildEnvironment(p EnvParams) Environment {
	host := "server4"
	if p.TestCase.IPv6 {
		host = "server6"
	}
	requests := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		requests = append(requests, "https://"+host+":443/"+f)
	}
	return Environment{
		"SERVER":           p.Server.Image,
		"CLIENT":           p.Client.Image,
		"SCENARIO":         p.TestCase.Scenario,
		"WAITFORSERVER":    "server:443",
		"CERTS":            p.Workspace.Certs,
		"WWW":              p.Workspace.WWW,
		"DOWNLOADS":        p.Workspace.Downloads,
		"SERVER_LOGS":      p.Workspace.ServerLogs,
		"CLIENT_LOGS":      p.Workspace.ClientLogs,
		"SIM_LOGS":         p.Workspace.SimLogs,
		"SSLKEYLOGFILE":    containerKeylogFile,
		"QLOGDIR":          containerQlogDir,
		"TESTCASE_SERVER":  p.TestCase.ServerTestName(),
		"TESTCASE_CLIENT":  p.TestCase.ClientTestName(),
		"TEST_TYPE":        string(p.TestCase.Type),
		"REQUESTS":         strings.Join(requests, " "),
		"VERSION":          p.TestCase.Version,
		"SERVER_PARAMS":    "",
		"CLIENT_PARAMS":    "",
		"IPERF_CONGESTION": "cubic",
	}
}

// complianceEnvironment is given to a lone endpoint asked to run a test case that doesn't exist.
func complianceEnvironment(role registry.Role, token string) Environment {
	return Environment{
		"ROLE":          string(role),
		"TESTCASE":      token,
		"SSLKEYLOGFILE": containerKeylogFile,
		"QLOGDIR":       containerQlogDir,
	}
}

// services returns the compose services a test case needs.
func services(tc testcases.TestCase) []string {
	ret := []string{ServiceSim, ServiceServer, ServiceClient}
	if tc.CrossTraffic {
		ret = append(ret, ServiceIperfServer, ServiceIperfClient)
	}
	return ret
}
