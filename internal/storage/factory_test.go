package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/dotenvenc/internal/config"
)

func TestNewLocalDefault(t *testing.T) {
	store, err := New(config.RemoteConfig{Local: config.LocalStore{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := New(config.RemoteConfig{Backend: "s3", S3: config.S3Store{Endpoint: "localhost:9000"}})
	assert.Error(t, err)
}

func TestNewS3(t *testing.T) {
	store, err := New(config.RemoteConfig{Backend: "s3", S3: config.S3Store{Endpoint: "localhost:9000", Bucket: "secrets", ForcePathStyle: true}})
	require.NoError(t, err)
	assert.IsType(t, &S3{}, store)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(config.RemoteConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestNewLocalRequiresPath(t *testing.T) {
	_, err := New(config.RemoteConfig{Backend: "local"})
	assert.Error(t, err)
}

func TestNewBackendCaseInsensitive(t *testing.T) {
	store, err := New(config.RemoteConfig{Backend: "S3", S3: config.S3Store{Endpoint: "localhost:9000", Bucket: "secrets"}})
	require.NoError(t, err)
	assert.IsType(t, &S3{}, store)
}
