package orchestrator

import (
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Names of the simulator's captures: the left node sits next to the client, the right node next
// to the server.
const (
	clientSideCapture = "trace_node_left.pcap"
	serverSideCapture = "trace_node_right.pcap"
	fileNameLength    = 10
)

// Workspace is the directory tree of one run. It is owned by a single attempt and removed when
// the attempt ends.
type Workspace struct {
	Root       string
	Certs      string
	WWW        string
	Downloads  string
	ServerLogs string
	ClientLogs string
	SimLogs    string
}

// NewWorkspace creates a fresh workspace under parent, or under the system temp directory if
// parent is empty.
func NewWorkspace(parent string) (*Workspace, error) {
	root, err := os.MkdirTemp(parent, "quic-interop-")
	if err != nil {
		return nil, err
	}
	w := &Workspace{
		Root:       root,
		Certs:      filepath.Join(root, "certs"),
		WWW:        filepath.Join(root, "www"),
		Downloads:  filepath.Join(root, "downloads"),
		ServerLogs: filepath.Join(root, "server-logs"),
		ClientLogs: filepath.Join(root, "client-logs"),
		SimLogs:    filepath.Join(root, "sim-logs"),
	}
	for _, dir := range []string{w.Certs, w.WWW, w.Downloads, w.ServerLogs, w.ClientLogs, w.SimLogs} {
		// the endpoints may run as any user
		if err := os.MkdirAll(dir, 0o777); err != nil { //nolint:gosec
			_ = os.RemoveAll(root)
			return nil, err
		}
		_ = os.Chmod(dir, 0o777) //nolint:gosec
	}
	return w, nil
}

func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// KeylogFile is the TLS key log written by the server.
func (w *Workspace) KeylogFile() string { return filepath.Join(w.ServerLogs, "keys.log") }

func (w *Workspace) ServerSideCapture() string { return filepath.Join(w.SimLogs, serverSideCapture) }

func (w *Workspace) ClientSideCapture() string { return filepath.Join(w.SimLogs, clientSideCapture) }

// OutputFile receives the container logs of the stack.
func (w *Workspace) OutputFile() string { return filepath.Join(w.Root, "output.txt") }

// GenerateFiles writes one file of random content per size into the www directory and returns
// their names.
func (w *Workspace) GenerateFiles(sizes []int, names TokenSource) ([]string, error) {
	ret := make([]string, 0, len(sizes))
	used := make(map[string]bool, len(sizes))
	for _, size := range sizes {
		name := names(fileNameLength)
		for used[name] {
			name = names(fileNameLength)
		}
		used[name] = true
		if err := writeRandomFile(filepath.Join(w.WWW, name), size); err != nil {
			return nil, err
		}
		ret = append(ret, name)
	}
	return ret, nil
}

func writeRandomFile(path string, size int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return err
	}
	_, err = io.CopyN(f, rand.Reader, int64(size))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Archive copies the log directories and the stack output to dest.
func (w *Workspace) Archive(dest string) error {
	for name, dir := range map[string]string{"server": w.ServerLogs, "client": w.ClientLogs, "sim": w.SimLogs} {
		if err := copyTree(dir, filepath.Join(dest, name)); err != nil {
			return fmt.Errorf("archiving %s logs: %w", name, err)
		}
	}
	if _, err := os.Stat(w.OutputFile()); err == nil {
		return copyFile(w.OutputFile(), filepath.Join(dest, "output.txt"))
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755) //nolint:gosec
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src) //nolint:gosec
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec
		return err
	}
	out, err := os.Create(dest) //nolint:gosec
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
