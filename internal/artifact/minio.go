package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lox/solixa/internal/config"
)

// MinIORepository keeps artifacts as objects under a prefix in a bucket.
type MinIORepository struct {
	client *minio.Client
	bucket string
	prefix string
	maxAge time.Duration
}

func NewMinIORepository(cfg config.MinIOConfig, maxAge time.Duration) (*MinIORepository, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIORepository{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, maxAge: maxAge}, nil
}

func (r *MinIORepository) key(name string) string {
	return path.Join(r.prefix, name)
}

func (r *MinIORepository) Load(ctx context.Context, name string) ([]byte, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, r.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// Save uploads in a single PUT; the object only becomes visible once the
// upload completes.
func (r *MinIORepository) Save(ctx context.Context, name string, data []byte) error {
	_, err := r.client.PutObject(ctx, r.bucket, r.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", name, err)
	}
	return nil
}

func (r *MinIORepository) IsStale(ctx context.Context, name string) (bool, error) {
	info, err := r.client.StatObject(ctx, r.bucket, r.key(name), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	return stale(info.LastModified, r.maxAge), nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
