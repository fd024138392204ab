package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"
)

const contentType = "application/x-ndjson"

var (
	// ErrEmptyPath is returned when a sink is asked to write without an object name
	ErrEmptyPath = errors.New("object path is required")
)

// Sink stores whole objects, replacing anything already at the same path
type Sink interface {
	Put(ctx context.Context, objectPath string, data []byte) error
	Close() error
}

// NewSink builds the sink selected by cfg.Kind
func NewSink(cfg *Config) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindAzure:
		return NewAzureSink(&cfg.Azure, cfg.Container)
	case KindS3:
		return NewS3Sink(&cfg.S3, cfg.Container)
	case KindFS:
		if err := os.MkdirAll(cfg.FS.Root, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create fs root: %w", err)
		}

		return NewFSSink(afero.NewBasePathFs(afero.NewOsFs(), cfg.FS.Root), cfg.Container), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// AzureSink uploads block blobs to one container
type AzureSink struct {
	client    *azblob.Client
	container string
}

// NewAzureSink prefers the connection string and falls back to the default credential chain
func NewAzureSink(cfg *AzureConfig, container string) (*AzureSink, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client from connection string: %w", err)
		}

		return &AzureSink{client: client, container: container}, nil
	}

	if cfg.Account == "" {
		return nil, ErrAzureAccountRequired
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve azure credential: %w", err)
	}

	accountURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)

	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureSink{client: client, container: container}, nil
}

// Put uploads data as a block blob; existing blobs are overwritten
func (s *AzureSink) Put(ctx context.Context, objectPath string, data []byte) error {
	if objectPath == "" {
		return ErrEmptyPath
	}

	if _, err := s.client.UploadBuffer(ctx, s.container, objectPath, data, nil); err != nil {
		return fmt.Errorf("azure upload %s/%s: %w", s.container, objectPath, err)
	}

	return nil
}

// Close is a no-op for Azure
func (s *AzureSink) Close() error {
	return nil
}

// S3Sink writes to an S3-compatible bucket
type S3Sink struct {
	client *minio.Client
	bucket string
}

// NewS3Sink creates a minio-go client for the endpoint. No request is made until the first Put.
func NewS3Sink(cfg *S3Config, bucket string) (*S3Sink, error) {
	if cfg.Endpoint == "" {
		return nil, ErrS3EndpointRequired
	}

	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrS3CredentialsRequired
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Sink{client: client, bucket: bucket}, nil
}

// Put writes the object; S3 semantics replace any existing key
func (s *S3Sink) Put(ctx context.Context, objectPath string, data []byte) error {
	if objectPath == "" {
		return ErrEmptyPath
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", s.bucket, objectPath, err)
	}

	return nil
}

// Close is a no-op for S3
func (s *S3Sink) Close() error {
	return nil
}

// FSSink writes objects as files below <container>/ on an afero filesystem
type FSSink struct {
	fs        afero.Fs
	container string
}

// NewFSSink wraps an afero filesystem
func NewFSSink(fs afero.Fs, container string) *FSSink {
	return &FSSink{fs: fs, container: container}
}

// Put truncates and rewrites the file at the object path
func (s *FSSink) Put(_ context.Context, objectPath string, data []byte) error {
	if objectPath == "" {
		return ErrEmptyPath
	}

	full := path.Join(s.container, objectPath)

	if err := s.fs.MkdirAll(path.Dir(full), 0o750); err != nil {
		return fmt.Errorf("fs mkdir %s: %w", path.Dir(full), err)
	}

	if err := afero.WriteFile(s.fs, full, data, 0o640); err != nil {
		return fmt.Errorf("fs write %s: %w", full, err)
	}

	return nil
}

// Close is a no-op for the filesystem
func (s *FSSink) Close() error {
	return nil
}

// Verify interface compliance at compile time
var (
	_ Sink = (*AzureSink)(nil)
	_ Sink = (*S3Sink)(nil)
	_ Sink = (*FSSink)(nil)
)
