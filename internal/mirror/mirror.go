// Package mirror copies completed job artifacts to an S3 compatible bucket.
package mirror

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Mirror interface {
	Enabled() bool
	// Upload copies the named files of dir to <tool>/<jobID>/<name>.
	Upload(ctx context.Context, tool, jobID, dir string, names []string) error
}

type Opts func(c *mirrorConfig)

type mirrorConfig struct {
	endpoint  string
	bucket    string
	accessKey string
	secretKey string
	useSSL    bool
}

func WithEndpoint(endpoint string) Opts {
	return func(c *mirrorConfig) { c.endpoint = endpoint }
}

func WithBucket(bucket string) Opts {
	return func(c *mirrorConfig) { c.bucket = bucket }
}

func WithCredentials(accessKey, secretKey string) Opts {
	return func(c *mirrorConfig) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) Opts {
	return func(c *mirrorConfig) { c.useSSL = useSSL }
}

// New returns a disabled mirror when no endpoint is configured.
func New(opts ...Opts) (Mirror, error) {
	cfg := &mirrorConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.endpoint == "" {
		return &noopMirror{}, nil
	}
	if cfg.bucket == "" {
		return nil, fmt.Errorf("mirror bucket is required when an endpoint is set")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &minioMirror{cfg: cfg, client: client}, nil
}

// ObjectKey is the object name of an artifact in the bucket.
func ObjectKey(tool, jobID, name string) string {
	return path.Join(tool, jobID, name)
}

type noopMirror struct{}

func (n *noopMirror) Enabled() bool { return false }

func (n *noopMirror) Upload(context.Context, string, string, string, []string) error { return nil }

type minioMirror struct {
	cfg    *mirrorConfig
	client *minio.Client
}

func (m *minioMirror) Enabled() bool { return true }

func (m *minioMirror) Upload(ctx context.Context, tool, jobID, dir string, names []string) error {
	for _, name := range names {
		key := ObjectKey(tool, jobID, name)
		info, err := m.client.FPutObject(ctx, m.cfg.bucket, key, filepath.Join(dir, name), minio.PutObjectOptions{
			ContentType: contentType(name),
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
		zap.S().Named("mirror").Debugw("artifact mirrored", "bucket", info.Bucket, "key", info.Key, "size", info.Size)
	}
	return nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
