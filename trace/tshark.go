package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/quic-interop/interop-harness/framework"
)

// ErrNoCapture is returned when the capture file of a run does not exist or is empty.
var ErrNoCapture = errors.New("capture file missing or empty")

// Reader loads a capture into a Trace.
type Reader interface {
	Read(ctx context.Context, capturePath, keylogPath string) (*Trace, error)
}

// TSharkReader dissects captures by running tshark. The key log file lets tshark decrypt the
// QUIC payloads so that frame-level fields are available.
type TSharkReader struct {
	// Path of the tshark binary; "tshark" if empty.
	Path   string
	Logger framework.Logger
}

func (t TSharkReader) Read(ctx context.Context, capturePath, keylogPath string) (*Trace, error) {
	if info, err := os.Stat(capturePath); err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", capturePath, ErrNoCapture)
	}
	path := t.Path
	if path == "" {
		path = "tshark"
	}
	args := t.args(capturePath, keylogPath)
	if t.Logger != nil {
		t.Logger.Printf("Running %s %s", path, strings.Join(args, " "))
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tshark failed on %s: %w: %s", capturePath, err, strings.TrimSpace(stderr.String()))
	}
	tr, err := Decode(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("cannot parse trace %s: %w", capturePath, err)
	}
	return tr, nil
}

func (t TSharkReader) args(capturePath, keylogPath string) []string {
	args := []string{"-r", capturePath, "-T", "json", "--no-duplicate-keys", "-Y", "quic && !icmp"}
	if keylogPath != "" {
		if _, err := os.Stat(keylogPath); err == nil {
			args = append(args, "-o", "tls.keylog_file:"+keylogPath)
		}
	}
	return args
}
