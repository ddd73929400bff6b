package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileStorage stores one file per key under dir. Writes go to a temp file
// which is then renamed over the target, so a crash never leaves half a value.
type FileStorage struct {
	fs  afero.Fs
	dir string
}

// NewFileStorage creates dir (if needed) on fs. Pass afero.NewOsFs() for disk.
func NewFileStorage(fs afero.Fs, dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage: dir required")
	}
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file storage mkdir: %w", err)
	}
	return &FileStorage{fs: fs, dir: dir}, nil
}

func (f *FileStorage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("file storage: invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *FileStorage) Get(ctx context.Context, key string) (string, error) {
	p, err := f.path(key)
	if err != nil {
		return "", err
	}
	b, err := afero.ReadFile(f.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("file storage read: %w", err)
	}
	return string(b), nil
}

func (f *FileStorage) Set(ctx context.Context, key, value string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("file storage write: %w", err)
	}
	if err := f.fs.Rename(tmp, p); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("file storage rename: %w", err)
	}
	return nil
}

func (f *FileStorage) Remove(ctx context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := f.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file storage remove: %w", err)
	}
	return nil
}

func (f *FileStorage) Backend() string { return "file" }
