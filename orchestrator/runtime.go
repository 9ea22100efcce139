// Package orchestrator runs one (server, client, test case) triple: it prepares an isolated
// workspace, starts the network simulator and both endpoints, waits for the client within the
// test case's time bound, classifies what happened and always tears everything down again.
package orchestrator

import (
	"context"
	"io"

	"github.com/quic-interop/interop-harness/framework/opt"
)

// Service names of the stack.
const (
	ServiceSim         = "sim"
	ServiceServer      = "server"
	ServiceClient      = "client"
	ServiceIperfServer = "iperf_server"
	ServiceIperfClient = "iperf_client"
)

// StackSpec describes a stack to start.
type StackSpec struct {
	// Project isolates the stack's resources in the container runtime.
	Project  string
	Env      Environment
	Services []string
}

// ExitCodes holds the exit codes of endpoints that have exited. An endpoint still running has
// no code.
type ExitCodes struct {
	Server opt.Maybe[int]
	Client opt.Maybe[int]
}

// Runtime starts stacks and single endpoints.
type Runtime interface {
	Up(ctx context.Context, spec StackSpec) (Stack, error)
	// RunEndpoint runs one endpoint image on its own and returns its exit code.
	RunEndpoint(ctx context.Context, image string, env Environment) (int, error)
}

// Stack is a running simulator plus endpoints.
type Stack interface {
	// WaitClient blocks until the client exits and returns its exit code. If ctx ends first,
	// it returns ctx's error.
	WaitClient(ctx context.Context) (int, error)
	ExitCodes(ctx context.Context) (ExitCodes, error)
	// Stop stops the remaining containers gracefully so that captures and logs are flushed.
	Stop(ctx context.Context) error
	Logs(ctx context.Context, w io.Writer) error
	// Down kills and removes every container and network of the stack.
	Down(ctx context.Context) error
}
