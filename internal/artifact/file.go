package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileRepository keeps artifacts as files in one directory.
type FileRepository struct {
	dir    string
	maxAge time.Duration
}

// NewFileRepository creates dir if needed. A zero maxAge means artifacts
// never go stale.
func NewFileRepository(dir string, maxAge time.Duration) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileRepository{dir: dir, maxAge: maxAge}, nil
}

func (r *FileRepository) path(name string) string {
	return filepath.Join(r.dir, filepath.Base(name))
}

func (r *FileRepository) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(r.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers never see a partial file.
func (r *FileRepository) Save(_ context.Context, name string, data []byte) error {
	tmp, err := os.CreateTemp(r.dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), r.path(name)); err != nil {
		return fmt.Errorf("rename artifact %s: %w", name, err)
	}
	return nil
}

func (r *FileRepository) IsStale(_ context.Context, name string) (bool, error) {
	info, err := os.Stat(r.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	return stale(info.ModTime(), r.maxAge), nil
}

func stale(modified time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && time.Since(modified) > maxAge
}
