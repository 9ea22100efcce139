// Package publish uploads the reports and logs of a finished run to S3-compatible storage.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/quic-interop/interop-harness/framework"
)

// PutObjectAPI is the part of the S3 client used by S3Publisher.
type PutObjectAPI interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Publisher writes objects under Prefix in Bucket.
type S3Publisher struct {
	Client      PutObjectAPI
	Bucket      string
	Prefix      string
	DebugLogger framework.Logger
}

// S3Config selects the bucket and, for non-AWS storage, the endpoint.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewS3Publisher creates a publisher using the default AWS credential chain.
func NewS3Publisher(config S3Config, debugLogger framework.Logger) (*S3Publisher, error) {
	awsConfig := aws.NewConfig()
	if config.Region != "" {
		awsConfig = awsConfig.WithRegion(config.Region)
	}
	if config.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(config.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return &S3Publisher{
		Client:      s3.New(sess),
		Bucket:      config.Bucket,
		Prefix:      config.Prefix,
		DebugLogger: debugLogger,
	}, nil
}

// Put uploads data as the object name.
func (p *S3Publisher) Put(ctx context.Context, name string, data []byte) error {
	key := p.key(name)
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if _, err := p.Client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", p.Bucket, key, err)
	}
	p.debugLogger().Printf("Uploaded s3://%s/%s (%d bytes)", p.Bucket, key, len(data))
	return nil
}

// PutDir uploads every regular file below dir, keyed by its path relative to the parent of
// dir.
func (p *S3Publisher) PutDir(ctx context.Context, dir string) error {
	base := filepath.Dir(filepath.Clean(dir))
	return filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, file)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(file) //nolint:gosec
		if err != nil {
			return err
		}
		return p.Put(ctx, filepath.ToSlash(rel), data)
	})
}

func (p *S3Publisher) debugLogger() framework.Logger {
	if p.DebugLogger == nil {
		return framework.NullLogger()
	}
	return p.DebugLogger
}

func (p *S3Publisher) key(name string) string {
	if p.Prefix == "" {
		return name
	}
	return path.Join(p.Prefix, name)
}
