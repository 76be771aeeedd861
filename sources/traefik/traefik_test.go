package traefik

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeHint(t *testing.T, path, ip string) {
	t.Helper()
	content := "external_ip = \"" + ip + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("writing hint file: %v", err)
	}
}

func TestCurrentReadsHintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hint.toml")
	writeHint(t, path, "203.0.113.9")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	addr, err := s.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if addr != netip.MustParseAddr("203.0.113.9") {
		t.Errorf("Current = %v, want 203.0.113.9", addr)
	}
}

func TestCurrentMissingFileErrors(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Current(context.Background()); err == nil {
		t.Error("Current on missing file: want error, got nil")
	}
}

func TestWatchEmitsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hint.toml")
	writeHint(t, path, "203.0.113.1")

	s, err := New(path, WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeHint(t, path, "203.0.113.2")

	select {
	case ev := <-ch:
		if ev.NewIP != netip.MustParseAddr("203.0.113.2") {
			t.Errorf("event NewIP = %v, want 203.0.113.2", ev.NewIP)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWatchTwiceErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hint.toml")
	writeHint(t, path, "203.0.113.1")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := s.Watch(ctx); err != nil {
		t.Fatalf("first Watch: %v", err)
	}
	if _, err := s.Watch(ctx); err == nil {
		t.Error("second Watch: want error, got nil")
	}
	_ = s.Close()
}
