package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreGetPut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "ledger.transactions"); found || err != nil {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}

	if err := s.Put(ctx, "ledger.transactions", []byte(`[1]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "ledger.transactions", []byte(`[2]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, found, err := s.Get(ctx, "ledger.transactions")
	if err != nil || !found || string(got) != "[2]" {
		t.Fatalf("unexpected get: %q found=%v err=%v", got, found, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "ledger.transactions.json" {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStorePathSanitizesKey(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := filepath.Base(s.Path("../escape")); got != ".._escape.json" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "k", []byte("x")); err == nil {
		t.Fatal("expected context error")
	}
}
