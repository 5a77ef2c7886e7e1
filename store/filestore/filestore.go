// Package filestore persists credential slots as flat files inside a data
// folder, one file per key. Writes go through a temp file and rename so a
// reader never observes a half-written slot.
package filestore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/store"
)

var _ store.Store = (*FileStore)(nil)

type FileStore struct {
	folder string
}

// New creates the data folder if needed and returns a store backed by it.
func New(folder string) (*FileStore, error) {
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(apperrors.ErrStoreUnavailable, err.Error())
	}
	return &FileStore{folder: folder}, nil
}

func (fs *FileStore) Get(key string) (string, error) {
	path, err := fs.path(key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return string(data), nil
	case os.IsNotExist(err):
		return "", apperrors.ErrKeyNotFound
	default:
		return "", errors.Wrap(apperrors.ErrStoreUnavailable, err.Error())
	}
}

func (fs *FileStore) Set(key, value string) error {
	path, err := fs.path(key)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return errors.Wrap(apperrors.ErrStoreUnavailable, err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(apperrors.ErrStoreUnavailable, err.Error())
	}
	return nil
}

func (fs *FileStore) Delete(key string) error {
	path, err := fs.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(apperrors.ErrStoreUnavailable, err.Error())
	}
	return nil
}

func (fs *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", errors.Errorf("[FileStore] invalid key %q", key)
	}
	return filepath.Join(fs.folder, key), nil
}
