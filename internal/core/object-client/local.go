package objectclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/junwei-liu/docgate/internal/core"
)

// LocalStore keeps blobs as plain files under a base directory. Keys may
// contain slashes; they map to subdirectories.
type LocalStore struct {
	base string
}

var _ core.BlobStore = (*LocalStore)(nil)

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{base: baseDir}, nil
}

func (c *LocalStore) Backend() string { return "local" }

func (c *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(c.base, clean), nil
}

func (c *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path, err := c.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return "file://" + path, nil
}

func (c *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := c.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (c *LocalStore) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := c.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (c *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
