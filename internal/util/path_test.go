package util

import (
	"strings"
	"testing"
	"time"
)

func TestBuildObjectKey(t *testing.T) {
	when := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	key := BuildObjectKey("secrets", "webapp", ".env.enc", when, "enc.zst")
	if !strings.HasPrefix(key, "secrets/webapp/_env.enc/") {
		t.Fatalf("unexpected prefix: %s", key)
	}
	if !strings.HasSuffix(key, "20240101T100000.000000000Z.enc.zst") {
		t.Fatalf("unexpected suffix: %s", key)
	}
}

func TestBuildObjectKeyOrdersByTime(t *testing.T) {
	first := BuildObjectKey("", "p", ".env.enc", time.Date(2024, 1, 1, 10, 0, 0, 1, time.UTC), "enc")
	second := BuildObjectKey("", "p", ".env.enc", time.Date(2024, 1, 1, 10, 0, 0, 2, time.UTC), "enc")
	if first >= second {
		t.Fatalf("expected %s < %s", first, second)
	}
}

func TestBuildPrefix(t *testing.T) {
	prefix := BuildPrefix("/secrets/", "webapp", ".env.enc")
	if prefix != "secrets/webapp/_env.enc" {
		t.Fatalf("unexpected prefix: %s", prefix)
	}
	if got := BuildPrefix("", "webapp", ""); got != "webapp" {
		t.Fatalf("unexpected prefix: %s", got)
	}
}
