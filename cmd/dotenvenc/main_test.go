package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rowjay/dotenvenc/internal/app"
)

const plaintext = "API_KEY=abc123\nDEBUG=false\n"

// project lays out a throwaway project and isolates config lookup.
func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DOTENVENC_CONFIG", "")
	t.Setenv("DOTENVENC_PASSWORD", "")
	t.Setenv("DOTENVENC_KEY", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(plaintext), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	lockFile := filepath.Join(t.TempDir(), "test.lock")
	cmd.SetArgs(append(args, "--lock-file", lockFile, "--log-level", "error"))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestEncryptDecryptCommands(t *testing.T) {
	dir := project(t)

	out, err := run(t, "encrypt", "--password", "secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.HasPrefix(out, ".env.enc\t") {
		t.Fatalf("unexpected encrypt output: %q", out)
	}
	if err := os.Remove(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := run(t, "decrypt", "--password", "secret", "--verify"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != plaintext {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestDryRunPrintsInsteadOfWriting(t *testing.T) {
	dir := project(t)

	out, err := run(t, "encrypt", "--password", "secret", "--dry-run")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".env.enc")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote the artifact")
	}
	if err := os.WriteFile(filepath.Join(dir, ".env.enc"), []byte(out), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err = run(t, "decrypt", "--password", "secret", "--dry-run")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if out != plaintext {
		t.Fatalf("unexpected plaintext: %q", out)
	}
}

func TestMissingPassword(t *testing.T) {
	project(t)
	_, err := run(t, "encrypt")
	if !errors.Is(err, app.ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestPasswordFromEnv(t *testing.T) {
	dir := project(t)
	t.Setenv("DOTENVENC_PASSWORD", "secret")
	if _, err := run(t, "encrypt"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".env.enc")); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestBatchEncrypt(t *testing.T) {
	dir := project(t)
	if err := os.WriteFile(filepath.Join(dir, ".env.test"), []byte("X=1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := run(t, "encrypt", "--password", "secret", ".env", ".env.test")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if lines := strings.Count(out, "\n"); lines != 2 {
		t.Fatalf("expected two result lines, got %q", out)
	}
	for _, name := range []string{".env.enc", ".env.test.enc"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s missing: %v", name, err)
		}
	}
	if _, err := run(t, "encrypt", "--password", "secret", "-i", ".env", ".env.test"); err == nil {
		t.Fatalf("expected error mixing --input with FILE arguments")
	}
}

func TestLocateCommand(t *testing.T) {
	dir := project(t)
	sub := filepath.Join(dir, "src", "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Chdir(sub)

	out, err := run(t, "locate")
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected dir: got %q want %q", got, want)
	}
	if _, err := run(t, "locate", ".missing"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestPushPullCommands(t *testing.T) {
	dir := project(t)
	remote := t.TempDir()
	if _, err := run(t, "encrypt", "--password", "secret"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	original, err := os.ReadFile(filepath.Join(dir, ".env.enc"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	out, err := run(t, "push", "--password", "secret", "--remote-path", remote)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	key := strings.SplitN(strings.TrimSpace(out), "\t", 2)[0]
	if !strings.HasSuffix(key, ".enc.zst") {
		t.Fatalf("unexpected key: %q", key)
	}

	out, err = run(t, "list", "--remote-path", remote)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, key+"\t") {
		t.Fatalf("unexpected list output: %q", out)
	}

	if err := os.Remove(filepath.Join(dir, ".env.enc")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := run(t, "pull", "--password", "secret", "--remote-path", remote); err != nil {
		t.Fatalf("pull: %v", err)
	}
	restored, err := os.ReadFile(filepath.Join(dir, ".env.enc"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(original, restored) {
		t.Fatalf("restored artifact differs")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "dotenvenc dev") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestDryRunRefusesSeveralFiles(t *testing.T) {
	dir := project(t)
	if err := os.WriteFile(filepath.Join(dir, ".env.test"), []byte("X=1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, verb := range []string{"encrypt", "decrypt"} {
		args := []string{verb, "--password", "secret", "--dry-run", ".env.enc", ".env.test.enc"}
		if verb == "encrypt" {
			args = []string{verb, "--password", "secret", "--dry-run", ".env", ".env.test"}
		}
		out, err := run(t, args...)
		if !errors.Is(err, errDryRunBatch) {
			t.Fatalf("%s: expected errDryRunBatch, got %v", verb, err)
		}
		if out != "" {
			t.Fatalf("%s: expected no output, got %q", verb, out)
		}
	}

	out, err := run(t, "encrypt", "--password", "secret", "--dry-run", ".env.test")
	if err != nil {
		t.Fatalf("single-file dry run: %v", err)
	}
	if !strings.Contains(out, ":") {
		t.Fatalf("expected artifact text, got %q", out)
	}
}

func TestDollarPasswordSameFromEnvAndFlag(t *testing.T) {
	dir := project(t)
	t.Setenv("DOTENVENC_PASSWORD", "pa$word")
	if _, err := run(t, "encrypt"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	t.Setenv("DOTENVENC_PASSWORD", "")
	if _, err := run(t, "decrypt", "--password", "pa$word", "--verify"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != plaintext {
		t.Fatalf("round trip mismatch: %q", got)
	}
}
