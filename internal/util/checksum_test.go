package util

import (
	"testing"

	"github.com/spf13/afero"
)

func TestFileMD5(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/f", []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, err := FileMD5(fsys, "/f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("unexpected digest: %s", sum)
	}
	if sum != BytesMD5([]byte("hello")) {
		t.Fatalf("file and byte digests differ")
	}
	if _, err := FileMD5(fsys, "/missing"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
