package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// SeedFile is read by NewFromFiles to pre-populate the ledger slot.
const SeedFile = "seed_ledger.json"

// Store is a process-local Slot. Payloads are copied in and out.
type Store struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func New() *Store {
	return &Store{slots: make(map[string][]byte)}
}

// NewFromFiles returns a store whose key slot holds the contents of
// base/seed_ledger.json, when that file exists.
func NewFromFiles(base, key string) *Store {
	s := New()
	data, err := os.ReadFile(filepath.Join(base, SeedFile))
	if err != nil || len(data) == 0 {
		return s
	}
	s.slots[key] = data
	return s
}

// Get implements persistence.Slot.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Put implements persistence.Slot.
func (s *Store) Put(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = append([]byte(nil), payload...)
	return nil
}

// Keys returns the occupied slot names.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.slots))
	for k := range s.slots {
		out = append(out, k)
	}
	return out
}
