package orchestrator

import (
	"bytes"
	"context"
	_ "embed" // for the compose file
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/quic-interop/interop-harness/framework/opt"
)

//go:embed compose.yml
var defaultComposeFile []byte

// ComposeRuntime runs stacks with "docker compose". The compose file is passed on standard input
// unless ComposeFile names one on disk.
type ComposeRuntime struct {
	ComposeFile string
	// Docker is the docker binary; "docker" if empty.
	Docker string
	// TeardownTimeout bounds the cleanup after a failed start; 60 seconds if zero.
	TeardownTimeout time.Duration
	Loggers         ldlog.Loggers
}

func (c *ComposeRuntime) docker() string {
	if c.Docker == "" {
		return "docker"
	}
	return c.Docker
}

func (c *ComposeRuntime) compose(ctx context.Context, project string, env Environment, args ...string) *exec.Cmd {
	file := c.ComposeFile
	if file == "" {
		file = "-"
	}
	all := append([]string{"compose", "-f", file, "-p", project}, args...)
	cmd := exec.CommandContext(ctx, c.docker(), all...) //nolint:gosec
	cmd.Env = append(os.Environ(), env.List()...)
	if c.ComposeFile == "" {
		cmd.Stdin = bytes.NewReader(defaultComposeFile)
	}
	return cmd
}

func (c *ComposeRuntime) run(ctx context.Context, project string, env Environment, args ...string) ([]byte, error) {
	cmd := c.compose(ctx, project, env, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	c.Loggers.Debugf("Running docker compose %s", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("docker compose %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (c *ComposeRuntime) Up(ctx context.Context, spec StackSpec) (Stack, error) {
	s := &composeStack{runtime: c, project: spec.Project, env: spec.Env}
	args := append([]string{"up", "-d", "--force-recreate", "--no-build"}, spec.Services...)
	if _, err := c.run(ctx, spec.Project, spec.Env, args...); err != nil {
		timeout := c.TeardownTimeout
		if timeout == 0 {
			timeout = teardownTimeout
		}
		downCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if downErr := s.Down(downCtx); downErr != nil {
			c.Loggers.Warnf("Cleaning up after failed start: %s", downErr)
		}
		return nil, err
	}
	return s, nil
}

func (c *ComposeRuntime) RunEndpoint(ctx context.Context, image string, env Environment) (int, error) {
	args := []string{"run", "--rm"}
	for _, kv := range env.List() {
		args = append(args, "-e", kv)
	}
	args = append(args, image)
	cmd := exec.CommandContext(ctx, c.docker(), args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		return exitErr.ExitCode(), nil
	default:
		return 0, fmt.Errorf("docker run %s: %w: %s", image, err, strings.TrimSpace(output.String()))
	}
}

type composeStack struct {
	runtime *ComposeRuntime
	project string
	env     Environment
}

func (s *composeStack) WaitClient(ctx context.Context) (int, error) {
	out, err := s.runtime.run(ctx, s.project, s.env, "wait", ServiceClient)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected output of docker compose wait: %q", out)
	}
	return code, nil
}

func (s *composeStack) ExitCodes(ctx context.Context) (ExitCodes, error) {
	out, err := s.runtime.run(ctx, s.project, s.env, "ps", "-a", "--format", "json")
	if err != nil {
		return ExitCodes{}, err
	}
	entries, err := parsePS(out)
	if err != nil {
		return ExitCodes{}, err
	}
	var codes ExitCodes
	for _, e := range entries {
		if e.State != "exited" {
			continue
		}
		switch e.Service {
		case ServiceServer:
			codes.Server = opt.Some(e.ExitCode)
		case ServiceClient:
			codes.Client = opt.Some(e.ExitCode)
		}
	}
	return codes, nil
}

func (s *composeStack) Stop(ctx context.Context) error {
	_, err := s.runtime.run(ctx, s.project, s.env, "stop", "--timeout", "1")
	return err
}

func (s *composeStack) Logs(ctx context.Context, w io.Writer) error {
	cmd := s.runtime.compose(ctx, s.project, s.env, "logs", "--no-color", "--timestamps")
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

func (s *composeStack) Down(ctx context.Context) error {
	var errs *multierror.Error
	if _, err := s.runtime.run(ctx, s.project, s.env, "kill"); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := s.runtime.run(ctx, s.project, s.env, "down", "--volumes", "--remove-orphans", "--timeout", "0"); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

type psEntry struct {
	Service  string
	State    string
	ExitCode int
}

// parsePS reads the output of "docker compose ps --format json", which depending on the compose
// version is either a JSON array or one JSON object per line.
func parsePS(data []byte) ([]psEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		r := jreader.NewReader(data)
		var ret []psEntry
		for arr := r.Array(); arr.Next(); {
			ret = append(ret, readPSEntry(&r))
		}
		return ret, r.Error()
	}
	var ret []psEntry
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		r := jreader.NewReader(line)
		e := readPSEntry(&r)
		if err := r.Error(); err != nil {
			return nil, err
		}
		ret = append(ret, e)
	}
	return ret, nil
}

func readPSEntry(r *jreader.Reader) psEntry {
	var e psEntry
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "Service":
			e.Service = r.String()
		case "State":
			e.State = r.String()
		case "ExitCode":
			e.ExitCode = r.Int()
		default:
			_ = r.SkipValue()
		}
	}
	return e
}
