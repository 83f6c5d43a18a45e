package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStoreGetPut(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "k"); found || err != nil {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}

	payload := []byte(`[]`)
	if err := s.Put(ctx, "k", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	payload[0] = 'x' // caller mutation must not leak in

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != "[]" {
		t.Fatalf("unexpected get: %q found=%v err=%v", got, found, err)
	}
	if len(s.Keys()) != 1 {
		t.Fatalf("keys = %v", s.Keys())
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// No file -> empty slot
	s := NewFromFiles(dir, "ledger")
	if _, found, _ := s.Get(ctx, "ledger"); found {
		t.Fatalf("expected no seed when file is missing")
	}

	seed := `[{"id":2,"title":"Salary","amount":2000,"type":"income","date":"2025-10-03"}]`
	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s = NewFromFiles(dir, "ledger")
	got, found, err := s.Get(ctx, "ledger")
	if err != nil || !found || string(got) != seed {
		t.Fatalf("seed not loaded: %q found=%v err=%v", got, found, err)
	}
}
