// Package localfs хранит блобы в файловой системе через afero.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"kurodrive/internal/blob"
)

type Store struct {
	fs   afero.Fs
	root string
}

var _ blob.Store = (*Store)(nil)

func New(fsys afero.Fs, root string) (*Store, error) {
	if err := fsys.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &Store{fs: fsys, root: root}, nil
}

// NewOS открывает хранилище на диске.
func NewOS(root string) (*Store, error) {
	return New(afero.NewOsFs(), root)
}

// path раскладывает блобы по подкаталогам из первых двух символов дескриптора.
func (s *Store) path(handle string) string {
	return filepath.Join(s.root, handle[:2], handle)
}

func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	handle := blob.NewHandle()
	dst := s.path(handle)
	dir := filepath.Dir(dst)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create blob dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", err
	}
	if err := s.fs.Rename(tmpName, dst); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return handle, nil
}

func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !blob.ValidHandle(handle) {
		return nil, blob.ErrBlobNotFound
	}
	data, err := afero.ReadFile(s.fs, s.path(handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, blob.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !blob.ValidHandle(handle) {
		return nil
	}
	err := s.fs.Remove(s.path(handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
