package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/quic-interop/interop-harness/framework"
	"github.com/quic-interop/interop-harness/framework/opt"
	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/lease"
	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/testcases"
	"github.com/quic-interop/interop-harness/trace"
)

// UnsupportedExitCode is what an endpoint exits with when it doesn't implement a test case.
const UnsupportedExitCode = 127

const (
	// Every stack uses the same networks and container names, so all of them share one lease.
	stackLeaseName    = "stack"
	teardownTimeout   = 60 * time.Second
	complianceTimeout = 60 * time.Second
	flushPollInterval = 100 * time.Millisecond
)

// Config holds the collaborators of an Orchestrator. Runtime and TraceReader are required.
type Config struct {
	Runtime     Runtime
	TraceReader trace.Reader
	// Locker serializes stacks across processes; an in-process lock is used if nil.
	Locker lease.Locker
	// WorkDir is where workspaces are created; the system temp directory if empty.
	WorkDir string
	// LogDir, if set, receives a copy of every run's logs before its workspace is removed.
	LogDir string
	// Tokens generates file names and compliance test case names; RandomToken if nil.
	Tokens TokenSource
	// MaxFlushWait bounds how long to wait for the captures to stop growing after the stack
	// was stopped.
	MaxFlushWait time.Duration
	// Debug echoes every run's debug output as it happens, instead of only collecting it.
	Debug   framework.Logger
	Loggers ldlog.Loggers
}

// Outcome is the classified result of one attempt.
type Outcome struct {
	Result result.Result
	// Err explains a result other than success.
	Err error
	// Value is the measured value of a successful measurement repetition.
	Value    opt.Maybe[float64]
	Duration time.Duration
	Output   framework.CapturedOutput
}

// Orchestrator runs triples one at a time.
type Orchestrator struct {
	config     Config
	compliance map[string]error
	lock       sync.Mutex
}

func New(config Config) *Orchestrator {
	if config.Locker == nil {
		config.Locker = lease.NewLocalLocker()
	}
	if config.Tokens == nil {
		config.Tokens = RandomToken
	}
	return &Orchestrator{config: config, compliance: make(map[string]error)}
}

// Run executes one attempt of test case tc with the given server and client. It never panics or
// returns early without tearing the stack down and removing the workspace; every failure is
// folded into the Outcome.
func (o *Orchestrator) Run(
	ctx context.Context,
	server, client registry.Implementation,
	tc testcases.TestCase,
) Outcome {
	logger := &framework.CapturingLogger{Echo: o.config.Debug}
	start := time.Now()
	value, err := o.run(ctx, logger, server, client, tc)
	r, _ := result.Classify(err)
	if err != nil {
		logger.Printf("Result: %s (%s)", r, err)
		value = opt.None[float64]()
	} else {
		logger.Printf("Result: %s", r)
	}
	return Outcome{Result: r, Err: err, Value: value, Duration: time.Since(start), Output: logger.Output()}
}

func (o *Orchestrator) run(
	ctx context.Context,
	logger framework.Logger,
	server, client registry.Implementation,
	tc testcases.TestCase,
) (opt.Maybe[float64], error) {
	none := opt.None[float64]()
	if !server.Role.CanServe() {
		return none, &OrchestrationError{Op: "setup", Err: fmt.Errorf("%s cannot be used as a server (role %s)", server.Name, server.Role)}
	}
	if !client.Role.CanConnect() {
		return none, &OrchestrationError{Op: "setup", Err: fmt.Errorf("%s cannot be used as a client (role %s)", client.Name, client.Role)}
	}

	release, err := o.config.Locker.Acquire(ctx, stackLeaseName)
	if err != nil {
		return none, &OrchestrationError{Op: "lease", Err: err}
	}
	defer func() {
		if err := release(); err != nil {
			o.config.Loggers.Warnf("Releasing stack lease: %s", err)
		}
	}()

	ws, err := NewWorkspace(o.config.WorkDir)
	if err != nil {
		return none, &OrchestrationError{Op: "setup", Err: err}
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			o.config.Loggers.Errorf("Removing workspace %s: %s", ws.Root, err)
		}
	}()
	logger.Printf("Workspace: %s", ws.Root)

	if err := GenerateCertChain(ws.Certs, tc.CertChainLength); err != nil {
		return none, &OrchestrationError{Op: "setup", Err: fmt.Errorf("generating certificates: %w", err)}
	}
	files, err := ws.GenerateFiles(tc.FileSizes, o.config.Tokens)
	if err != nil {
		return none, &OrchestrationError{Op: "setup", Err: fmt.Errorf("generating files: %w", err)}
	}

	spec := StackSpec{
		Project:  "quic-interop-" + uuid.NewString()[:8],
		Env:      BuildEnvironment(EnvParams{Server: server, Client: client, TestCase: tc, Workspace: ws, Files: files}),
		Services: services(tc),
	}
	logger.Printf("Starting stack %s: server %s, client %s, test case %s", spec.Project, server.Image, client.Image, tc.Name)
	logger.Printf("Scenario: %s", tc.Scenario)

	stack, err := o.config.Runtime.Up(ctx, spec)
	if err != nil {
		return none, &OrchestrationError{Op: "start", Err: err}
	}
	var torn bool
	teardown := func() {
		if torn {
			return
		}
		torn = true
		o.teardown(stack, ws, logger, server, client, tc)
	}
	defer teardown()

	timeout := tc.RunTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runStart := time.Now()
	clientCode, err := stack.WaitClient(runCtx)
	elapsed := time.Since(runStart)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			teardown()
			return none, &OrchestrationError{Op: "wait", Err: ctx.Err()}
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			logger.Printf("Client did not exit within %s, tearing down", timeout)
			teardown()
			return none, fmt.Errorf("%w: client did not exit within %s", ErrTimeout, timeout)
		default:
			return none, &OrchestrationError{Op: "wait", Err: err}
		}
	}
	logger.Printf("Client exited with code %d after %s", clientCode, elapsed)

	codes, err := stack.ExitCodes(ctx)
	if err != nil {
		return none, &OrchestrationError{Op: "inspect", Err: err}
	}
	if err := stack.Stop(ctx); err != nil {
		logger.Printf("Stopping stack: %s", err)
	}

	if err := classifyExit(clientCode, codes.Server); err != nil {
		return none, err
	}

	o.waitForFlush(ctx, ws.ServerSideCapture(), ws.ClientSideCapture())
	in := &testcases.CheckInput{
		WWW:       ws.WWW,
		Downloads: ws.Downloads,
		Files:     files,
		Duration:  elapsed,
		Traces:    newLazyTraces(ctx, o.config.TraceReader, ws),
		Logger:    logger,
	}
	if err := tc.Check(in); err != nil {
		return none, err
	}
	if !tc.IsMeasurement() {
		return none, nil
	}
	value := tc.Value(elapsed)
	if !value.IsDefined() {
		return none, fmt.Errorf("could not compute a %s value", tc.Name)
	}
	logger.Printf("Measured %.0f %s", value.Value(), tc.Unit)
	return value, nil
}

// classifyExit judges the endpoints' exit codes. The server is only judged if it exited on its
// own before the client finished.
func classifyExit(clientCode int, serverCode opt.Maybe[int]) error {
	if clientCode == UnsupportedExitCode {
		return fmt.Errorf("client exited with code %d: %w", clientCode, result.ErrUnsupported)
	}
	if serverCode.IsDefined() && serverCode.Value() == UnsupportedExitCode {
		return fmt.Errorf("server exited with code %d: %w", serverCode.Value(), result.ErrUnsupported)
	}
	if clientCode != 0 {
		return &ExitError{Role: "client", Code: clientCode}
	}
	if serverCode.IsDefined() && serverCode.Value() != 0 {
		return &ExitError{Role: "server", Code: serverCode.Value()}
	}
	return nil
}

// teardown runs on every path once the stack was started, with its own deadline so that an
// interrupted run still cleans up.
func (o *Orchestrator) teardown(
	stack Stack,
	ws *Workspace,
	logger framework.Logger,
	server, client registry.Implementation,
	tc testcases.TestCase,
) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	var errs *multierror.Error
	if f, err := os.Create(ws.OutputFile()); err == nil {
		if err := stack.Logs(ctx, f); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("collecting logs: %w", err))
		}
		_ = f.Close()
	}
	if err := stack.Down(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("stopping stack: %w", err))
	}
	if o.config.LogDir != "" {
		dest := filepath.Join(o.config.LogDir, server.Name+"_"+client.Name, tc.Name)
		if err := ws.Archive(dest); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			logger.Printf("Logs saved to %s", dest)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		logger.Printf("Teardown: %s", err)
		o.config.Loggers.Warnf("Teardown of %s/%s/%s: %s", server.Name, client.Name, tc.Name, err)
	}
}

// waitForFlush returns once none of the files has grown since the previous poll, or after
// MaxFlushWait.
func (o *Orchestrator) waitForFlush(ctx context.Context, paths ...string) {
	if o.config.MaxFlushWait <= 0 {
		return
	}
	deadline := time.Now().Add(o.config.MaxFlushWait)
	last := fileSizes(paths)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(flushPollInterval):
		}
		sizes := fileSizes(paths)
		if sizes == last {
			return
		}
		last = sizes
	}
}

func fileSizes(paths []string) string {
	ret := ""
	for _, p := range paths {
		var size int64 = -1
		if info, err := os.Stat(p); err == nil {
			size = info.Size()
		}
		ret += fmt.Sprintf("%d,", size)
	}
	return ret
}

// CheckCompliance verifies that impl, in the given role, rejects a test case it doesn't know
// by exiting with code 127. Results are cached per implementation and role.
func (o *Orchestrator) CheckCompliance(ctx context.Context, impl registry.Implementation, role registry.Role) error {
	key := impl.Name + "/" + string(role)
	o.lock.Lock()
	if err, ok := o.compliance[key]; ok {
		o.lock.Unlock()
		return err
	}
	o.lock.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, complianceTimeout)
	defer cancel()
	token := o.config.Tokens(10)
	o.config.Loggers.Infof("Checking compliance of %s %s", impl.Name, role)
	code, err := o.config.Runtime.RunEndpoint(runCtx, impl.Image, complianceEnvironment(role, token))
	switch {
	case err != nil:
		err = &OrchestrationError{Op: "compliance check", Err: err}
		if ctx.Err() != nil {
			return err
		}
	case code != UnsupportedExitCode:
		err = fmt.Errorf("%s %s is not compliant: exited with code %d for unknown test case %q: %w",
			impl.Name, role, code, token, result.ErrUnsupported)
	}

	o.lock.Lock()
	o.compliance[key] = err
	o.lock.Unlock()
	return err
}
