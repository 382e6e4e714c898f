// Package artifact stores trained model files and their metrics, either on
// the local filesystem or in an S3-compatible bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/lox/solixa/internal/config"
)

var ErrNotFound = errors.New("artifact not found")

// Repository loads and saves named artifacts. IsStale reports true when an
// artifact is missing or older than the repository's max age.
type Repository interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	IsStale(ctx context.Context, name string) (bool, error)
}

// New builds the repository selected by cfg.
func New(cfg config.ArtifactsConfig) (Repository, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileRepository(cfg.Dir, cfg.MaxAge)
	case "minio":
		repo, err := NewMinIORepository(cfg.MinIO, cfg.MaxAge)
		if err != nil {
			return nil, err
		}
		log.Printf("artifact: using bucket %s at %s", cfg.MinIO.Bucket, cfg.MinIO.Endpoint)
		return repo, nil
	}
	return nil, fmt.Errorf("unsupported artifact backend: %s", cfg.Backend)
}
