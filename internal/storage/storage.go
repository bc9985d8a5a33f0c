// Package storage keeps off-host copies of encrypted artifacts.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrObjectNotFound is matched by every backend's missing-key error.
var ErrObjectNotFound = errors.New("remote object not found")

type ObjectInfo struct {
	Key        string
	Size       int64
	Modified   time.Time
	ETag       string
	Metadata   map[string]string
	IsManifest bool
}

// Storage holds remote copies of encrypted artifacts. Keys use forward
// slashes regardless of backend.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

func IsManifest(key string) bool {
	return strings.HasSuffix(key, ManifestSuffix)
}

func info(key string, size int64, modified time.Time) ObjectInfo {
	return ObjectInfo{Key: key, Size: size, Modified: modified, IsManifest: IsManifest(key)}
}
