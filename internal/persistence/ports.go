package persistence

import (
	"context"

	"ledger/internal/core"
)

// SlotName is the well-known key the ledger is saved under.
const SlotName = "ledger.transactions"

// Ports for outbound adapters.
type (
	// Store loads and saves the complete record sequence, newest first.
	Store interface {
		// Load returns the saved sequence. Missing or unparseable payloads
		// yield an empty sequence and a nil error.
		Load(ctx context.Context) ([]core.Transaction, error)
		// Save replaces the stored sequence with records.
		Save(ctx context.Context, records []core.Transaction) error
	}

	// Slot is a durable key-value cell holding an opaque payload.
	Slot interface {
		// Get returns the payload under key; found is false when nothing
		// was ever stored there.
		Get(ctx context.Context, key string) (payload []byte, found bool, err error)
		Put(ctx context.Context, key string, payload []byte) error
	}
)
