package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/quic-interop/interop-harness/framework/opt"
	"github.com/quic-interop/interop-harness/trace"
)

// fakeRuntime simulates a stack: on startup it optionally copies the served files to the
// download directory, then reports the configured exit codes.
type fakeRuntime struct {
	lock          sync.Mutex
	upErr         error
	clientCode    int
	serverCode    opt.Maybe[int]
	hang          bool
	copyFiles     bool
	endpointCode  int
	endpointCalls int
	specs         []StackSpec
	stacks        []*fakeStack
}

type fakeStack struct {
	runtime *fakeRuntime
	spec    StackSpec
	stopped bool
	downs   int
}

func (f *fakeRuntime) Up(ctx context.Context, spec StackSpec) (Stack, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.specs = append(f.specs, spec)
	if f.upErr != nil {
		return nil, f.upErr
	}
	if f.copyFiles {
		entries, _ := os.ReadDir(spec.Env["WWW"])
		for _, e := range entries {
			data, _ := os.ReadFile(filepath.Join(spec.Env["WWW"], e.Name()))
			_ = os.WriteFile(filepath.Join(spec.Env["DOWNLOADS"], e.Name()), data, 0o600)
		}
	}
	_ = os.WriteFile(filepath.Join(spec.Env["SERVER_LOGS"], "server.log"), []byte("server output"), 0o600)
	s := &fakeStack{runtime: f, spec: spec}
	f.stacks = append(f.stacks, s)
	return s, nil
}

func (f *fakeRuntime) RunEndpoint(ctx context.Context, image string, env Environment) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.endpointCalls++
	if env["TESTCASE"] == "" {
		return 0, errors.New("no test case")
	}
	return f.endpointCode, nil
}

func (f *fakeRuntime) liveStacks() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	n := 0
	for _, s := range f.stacks {
		if s.downs == 0 {
			n++
		}
	}
	return n
}

func (s *fakeStack) WaitClient(ctx context.Context) (int, error) {
	if s.runtime.hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.runtime.clientCode, nil
}

func (s *fakeStack) ExitCodes(ctx context.Context) (ExitCodes, error) {
	return ExitCodes{Client: opt.Some(s.runtime.clientCode), Server: s.runtime.serverCode}, nil
}

func (s *fakeStack) Stop(ctx context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeStack) Logs(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "compose output\n")
	return err
}

func (s *fakeStack) Down(ctx context.Context) error {
	s.runtime.lock.Lock()
	defer s.runtime.lock.Unlock()
	s.downs++
	return nil
}

// fakeReader returns fixed traces, regardless of the capture files.
type fakeReader struct {
	server *trace.Trace
	client *trace.Trace
	reads  []string
}

func (f *fakeReader) Read(ctx context.Context, capturePath, keylogPath string) (*trace.Trace, error) {
	f.reads = append(f.reads, filepath.Base(capturePath))
	t := f.server
	if filepath.Base(capturePath) == clientSideCapture {
		t = f.client
	}
	if t == nil {
		return nil, trace.ErrNoCapture
	}
	return t, nil
}
