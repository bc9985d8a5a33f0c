package storage

import (
	"fmt"
	"strings"

	"github.com/rowjay/dotenvenc/internal/config"
)

// New builds the backend named by cfg.Backend; an empty name means local.
func New(cfg config.RemoteConfig) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "local", "":
		if cfg.Local.Path == "" {
			return nil, fmt.Errorf("local remote requires remote.local.path")
		}
		return NewLocal(cfg.Local.Path), nil
	case "s3":
		store, err := NewS3(cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", cfg.Backend)
	}
}
