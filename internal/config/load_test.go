package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOTENVENC_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Files.DecryptedName != ".env" || cfg.Files.EncryptedName != ".env.enc" {
		t.Fatalf("unexpected file names: %+v", cfg.Files)
	}
	if cfg.Files.BoundaryMarker != "package.json" {
		t.Fatalf("unexpected marker: %s", cfg.Files.BoundaryMarker)
	}
	if !cfg.Write {
		t.Fatalf("expected write to default to true")
	}
	if cfg.Global.OperationTimeout != 5*time.Minute {
		t.Fatalf("unexpected timeout: %s", cfg.Global.OperationTimeout)
	}
	if cfg.Remote.Compression != "zstd" {
		t.Fatalf("unexpected compression: %s", cfg.Remote.Compression)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOTENVENC_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOTENVENC_PASSWORD", "from-env")
	t.Setenv("DOTENVENC_FILES_ENCRYPTED_NAME", ".secrets.enc")
	t.Setenv("DOTENVENC_GLOBAL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Password != "from-env" {
		t.Fatalf("unexpected password source")
	}
	if cfg.Files.EncryptedName != ".secrets.enc" {
		t.Fatalf("unexpected encrypted name: %s", cfg.Files.EncryptedName)
	}
	if cfg.Global.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.Global.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dotenvenc.yaml")
	content := []byte("files:\n  decrypted_name: .env.local\n  boundary_marker: go.mod\nremote:\n  backend: s3\n  s3:\n    bucket: team-secrets\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Files.DecryptedName != ".env.local" || cfg.Files.BoundaryMarker != "go.mod" {
		t.Fatalf("unexpected files config: %+v", cfg.Files)
	}
	if cfg.Files.EncryptedName != ".env.enc" {
		t.Fatalf("expected default encrypted name, got %s", cfg.Files.EncryptedName)
	}
	if cfg.Remote.Backend != "s3" || cfg.Remote.S3.Bucket != "team-secrets" {
		t.Fatalf("unexpected remote config: %+v", cfg.Remote)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadNotificationsExpandEnv(t *testing.T) {
	t.Setenv("HOOK_TOKEN", "s3cr3t")
	dir := t.TempDir()
	path := filepath.Join(dir, "dotenvenc.yaml")
	content := []byte("notifications:\n  webhooks:\n    - name: ci\n      url: https://hooks.example.org/x\n      headers:\n        authorization: Bearer ${HOOK_TOKEN}\n  matrix:\n    - name: ops\n      server_url: https://matrix.example.org\n      access_token: $HOOK_TOKEN\n      room_id: \"!r:example.org\"\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Notifications.Webhooks) != 1 || len(cfg.Notifications.Matrix) != 1 {
		t.Fatalf("unexpected notifications: %+v", cfg.Notifications)
	}
	if got := cfg.Notifications.Webhooks[0].Headers["authorization"]; got != "Bearer s3cr3t" {
		t.Fatalf("header not expanded: %q", got)
	}
	if got := cfg.Notifications.Matrix[0].AccessToken; got != "s3cr3t" {
		t.Fatalf("token not expanded: %q", got)
	}
}

func TestLoadKeepsDollarInSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOTENVENC_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOTENVENC_PASSWORD", "pa$word")
	t.Setenv("DOTENVENC_KEY", "$HOME/x")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Password != "pa$word" {
		t.Fatalf("password rewritten: %q", cfg.Password)
	}
	if cfg.Key != "$HOME/x" {
		t.Fatalf("key rewritten: %q", cfg.Key)
	}
}

func TestLoadKeepLast(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOTENVENC_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOTENVENC_REMOTE_KEEP_LAST", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.KeepLast != 5 {
		t.Fatalf("unexpected keep_last: %d", cfg.Remote.KeepLast)
	}
}
