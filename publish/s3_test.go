package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	lock    sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput,
	_ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	key := aws.StringValue(input.Bucket) + "/" + aws.StringValue(input.Key)
	f.objects[key] = string(body)
	f.types[key] = aws.StringValue(input.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func newFake() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, types: map[string]string{}}
}

func TestPutUsesPrefixAndContentType(t *testing.T) {
	fake := newFake()
	p := &S3Publisher{Client: fake, Bucket: "results", Prefix: "2026-10-15"}

	require.NoError(t, p.Put(context.Background(), "result.json", []byte(`{}`)))
	assert.Equal(t, map[string]string{"results/2026-10-15/result.json": "{}"}, fake.objects)
	assert.Equal(t, "application/json", fake.types["results/2026-10-15/result.json"])
}

func TestPutWithoutPrefix(t *testing.T) {
	fake := newFake()
	p := &S3Publisher{Client: fake, Bucket: "results"}

	require.NoError(t, p.Put(context.Background(), "output", []byte("x")))
	assert.Equal(t, "application/octet-stream", fake.types["results/output"])
}

func TestPutReportsClientError(t *testing.T) {
	p := &S3Publisher{Client: &fakeS3{err: errors.New("denied")}, Bucket: "results"}

	err := p.Put(context.Background(), "result.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://results/result.json")
	assert.Contains(t, err.Error(), "denied")
}

func TestPutDirKeepsRelativePaths(t *testing.T) {
	root := t.TempDir()
	logs := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(filepath.Join(logs, "a_b", "handshake", "server"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "a_b", "handshake", "output.txt"), []byte("out"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "a_b", "handshake", "server", "log.txt"), []byte("srv"), 0o600))

	fake := newFake()
	p := &S3Publisher{Client: fake, Bucket: "b", Prefix: "run1"}
	require.NoError(t, p.PutDir(context.Background(), logs))

	var keys []string
	for k := range fake.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"b/run1/logs/a_b/handshake/output.txt",
		"b/run1/logs/a_b/handshake/server/log.txt",
	}, keys)
	assert.Equal(t, "srv", fake.objects["b/run1/logs/a_b/handshake/server/log.txt"])
}
