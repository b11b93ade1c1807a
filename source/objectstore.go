package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the object storage capability.
type ObjectStore interface {
	// Get returns the object's bytes, or ErrObjectNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put uploads the file at localPath under key.
	Put(ctx context.Context, bucket, key, localPath string) error
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	// Endpoint is the host[:port] of the API, "s3.amazonaws.com" for AWS.
	Endpoint string
	Region   string
	// AccessKey and SecretKey are optional; when empty the standard
	// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY variables are used.
	AccessKey string
	SecretKey string
	Insecure  bool
}

// MinioStore implements ObjectStore with the MinIO client, which speaks to
// AWS S3 and any S3-compatible server.
type MinioStore struct {
	client *minio.Client
	logger *slog.Logger
}

var _ ObjectStore = (*MinioStore)(nil)

// NewMinioStore creates an S3 client. No request is made until first use.
func NewMinioStore(cfg S3Config) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	creds := credentials.NewEnvAWS()
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinioStore{
		client: client,
		logger: slog.Default().With("component", "minio-store"),
	}, nil
}

// Get downloads an object into memory.
func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.logger.Debug("fetching object", "bucket", bucket, "key", key)

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapError(err)
	}
	s.logger.Debug("fetched object", "bucket", bucket, "key", key, "size", len(data))
	return data, nil
}

// Put uploads a local file, guessing its content type from the extension.
func (s *MinioStore) Put(ctx context.Context, bucket, key, localPath string) error {
	opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(filepath.Ext(localPath))}
	info, err := s.client.FPutObject(ctx, bucket, key, localPath, opts)
	if err != nil {
		return err
	}
	s.logger.Debug("uploaded object", "bucket", bucket, "key", key, "size", info.Size)
	return nil
}

func (s *MinioStore) mapError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	return err
}

// DirStore implements ObjectStore on a local directory, one subdirectory per bucket.
type DirStore struct {
	root string
}

var _ ObjectStore = (*DirStore)(nil)

// NewDirStore creates a store rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) path(bucket, key string) (string, error) {
	p := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key escapes store root", ErrInvalidLocation)
	}
	return p, nil
}

// Get reads an object file.
func (s *DirStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return data, err
}

// Put copies a local file into the store.
func (s *DirStore) Put(ctx context.Context, bucket, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}
