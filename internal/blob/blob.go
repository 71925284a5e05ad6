// Package blob stores uploaded prescription images and returns a URL they
// can be fetched from. Two backends exist: the local filesystem (served by
// the HTTP router) and any S3-compatible object store through MinIO.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Em-Vi/MediScan/internal/config"
)

// Store persists an object under name and returns its public URL.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ErrInvalidName is returned for object names that would escape the store.
var ErrInvalidName = errors.New("blob: invalid object name")

// ObjectName returns a collision-free name keeping ext (e.g. ".png").
func ObjectName(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return uuid.NewString() + strings.ToLower(ext)
}

func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return name, nil
}

// Local writes objects into Dir and serves them under URLPrefix.
type Local struct {
	Dir       string
	URLPrefix string
}

// NewLocal creates dir if needed.
func NewLocal(dir, urlPrefix string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", dir, err)
	}
	return &Local{Dir: dir, URLPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (l *Local) Put(ctx context.Context, name, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(l.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", name, err)
	}
	return l.URLPrefix + "/" + name, nil
}

// MinIO stores objects in a bucket of an S3-compatible server.
type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinIO connects to the server and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blob: bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("blob: make bucket: %w", err)
		}
	}
	return &MinIO{client: client, bucket: cfg.Bucket, publicURL: objectBaseURL(cfg)}, nil
}

func (m *MinIO) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("blob: put %s: %w", name, err)
	}
	return m.publicURL + "/" + name, nil
}

// objectBaseURL is PublicURL/bucket when set, otherwise the endpoint URL.
func objectBaseURL(cfg config.MinIOConfig) string {
	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return base + "/" + cfg.Bucket
}

// New builds the Store selected by cfg.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinIO(ctx, cfg.MinIO)
	case "local", "":
		return NewLocal(cfg.UploadDir, cfg.URLPrefix)
	default:
		return nil, errors.New("blob: unknown backend " + cfg.Backend)
	}
}
