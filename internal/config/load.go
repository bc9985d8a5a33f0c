package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "DOTENVENC"

	DefaultDecryptedName  = ".env"
	DefaultEncryptedName  = ".env.enc"
	DefaultBoundaryMarker = "package.json"
)

// Load reads configuration from a file, env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		vp.SetConfigFile(resolved)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("DOTENVENC_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"dotenvenc.yaml",
		"dotenvenc.yml",
		"dotenvenc.toml",
		"dotenvenc.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "dotenvenc")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func setDefaults(vp *viper.Viper) {
	// AutomaticEnv only sees keys viper already knows about.
	vp.SetDefault("password", "")
	vp.SetDefault("key", "")
	vp.SetDefault("write", true)
	vp.SetDefault("verify", false)
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "console")
	vp.SetDefault("global.lock_file", "")
	vp.SetDefault("global.lock_wait", "0s")
	vp.SetDefault("global.operation_timeout", "5m")
	vp.SetDefault("global.max_parallelism", 4)
	vp.SetDefault("files.decrypted_name", DefaultDecryptedName)
	vp.SetDefault("files.encrypted_name", DefaultEncryptedName)
	vp.SetDefault("files.boundary_marker", DefaultBoundaryMarker)
	vp.SetDefault("remote.backend", "local")
	vp.SetDefault("remote.prefix", "")
	vp.SetDefault("remote.project", "")
	vp.SetDefault("remote.compression", "zstd")
	vp.SetDefault("remote.retry_count", 3)
	vp.SetDefault("remote.retry_backoff", "2s")
	vp.SetDefault("remote.keep_last", 0)
	vp.SetDefault("remote.local.path", "./.dotenvenc-remote")
	vp.SetDefault("remote.s3.endpoint", "")
	vp.SetDefault("remote.s3.region", "")
	vp.SetDefault("remote.s3.bucket", "")
	vp.SetDefault("remote.s3.access_key", "")
	vp.SetDefault("remote.s3.secret_key", "")
	vp.SetDefault("remote.s3.session_token", "")
	vp.SetDefault("remote.s3.use_ssl", true)
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 5 * time.Minute
	}
	if cfg.Global.MaxParallelism <= 0 {
		cfg.Global.MaxParallelism = 1
	}
	if cfg.Remote.RetryBackoff == 0 {
		cfg.Remote.RetryBackoff = 2 * time.Second
	}
	if cfg.Files.DecryptedName == "" {
		cfg.Files.DecryptedName = DefaultDecryptedName
	}
	if cfg.Files.EncryptedName == "" {
		cfg.Files.EncryptedName = DefaultEncryptedName
	}
	if cfg.Files.BoundaryMarker == "" {
		cfg.Files.BoundaryMarker = DefaultBoundaryMarker
	}
}

// expandEnv resolves ${VAR} references in remote and notification
// credentials. Password and key are opaque and never expanded.
func expandEnv(cfg *Config) {
	cfg.Remote.S3.AccessKey = os.ExpandEnv(cfg.Remote.S3.AccessKey)
	cfg.Remote.S3.SecretKey = os.ExpandEnv(cfg.Remote.S3.SecretKey)
	cfg.Remote.S3.SessionToken = os.ExpandEnv(cfg.Remote.S3.SessionToken)
	for i := range cfg.Notifications.Webhooks {
		cfg.Notifications.Webhooks[i].URL = os.ExpandEnv(cfg.Notifications.Webhooks[i].URL)
		for k, v := range cfg.Notifications.Webhooks[i].Headers {
			cfg.Notifications.Webhooks[i].Headers[k] = os.ExpandEnv(v)
		}
	}
	for i := range cfg.Notifications.Mattermost {
		cfg.Notifications.Mattermost[i].URL = os.ExpandEnv(cfg.Notifications.Mattermost[i].URL)
	}
	for i := range cfg.Notifications.Matrix {
		cfg.Notifications.Matrix[i].AccessToken = os.ExpandEnv(cfg.Notifications.Matrix[i].AccessToken)
	}
}
