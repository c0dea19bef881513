package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileSuffix = ".cache"

// FileProvider stores one file per key under a directory. Writes go to a
// temporary file that is renamed into place, so readers never observe a
// partial entry.
type FileProvider struct {
	dir string
}

// NewFileProvider creates the directory if needed.
func NewFileProvider(dir string) (*FileProvider, error) {
	if dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileProvider{dir: dir}, nil
}

func (p *FileProvider) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(p.dir, key+fileSuffix), nil
}

// Get reads the entry for key, returning ErrCacheMiss when no file exists.
func (p *FileProvider) Get(_ context.Context, key string) ([]byte, error) {
	path, err := p.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Set replaces the entry for key atomically.
func (p *FileProvider) Set(_ context.Context, key string, value []byte) (err error) {
	path, err := p.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(p.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync cache file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Del removes the entry for key. Removing an absent key is not an error.
func (p *FileProvider) Del(_ context.Context, key string) error {
	path, err := p.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Close is a no-op; files are opened and closed per operation.
func (p *FileProvider) Close() error { return nil }
