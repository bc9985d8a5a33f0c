package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Local keeps remote copies in a directory, typically a mounted share.
type Local struct {
	Fs       afero.Fs
	BasePath string
}

func NewLocal(path string) *Local {
	return &Local{Fs: afero.NewOsFs(), BasePath: path}
}

func (l *Local) path(key string) string {
	return filepath.Join(l.BasePath, filepath.FromSlash(key))
}

func (l *Local) Put(ctx context.Context, key string, reader io.Reader, _ int64, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := l.path(key)
	if err := l.Fs.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	file, err := l.Fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := l.Fs.Open(l.path(key))
	if err != nil {
		return nil, notFound(key, err)
	}
	return file, nil
}

func (l *Local) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	fi, err := l.Fs.Stat(l.path(key))
	if err != nil {
		return ObjectInfo{}, notFound(key, err)
	}
	return info(key, fi.Size(), fi.ModTime()), nil
}

// List returns objects under prefix sorted by key. A missing prefix is empty.
func (l *Local) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos := []ObjectInfo{}
	err := afero.Walk(l.Fs, l.path(prefix), func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.BasePath, path)
		if err != nil {
			return err
		}
		infos = append(infos, info(filepath.ToSlash(rel), fi.Size(), fi.ModTime()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return notFound(key, l.Fs.Remove(l.path(key)))
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(l.Fs, l.path(key))
}

func notFound(key string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return err
}
