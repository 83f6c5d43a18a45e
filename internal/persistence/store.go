// Package persistence defines the load/save contract of the ledger and the
// record format it is saved in.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	applog "ledger/internal/log"
)

// SlotStore implements Store on top of any Slot using the JSON record codec.
type SlotStore struct {
	slot   Slot
	key    string
	logger *slog.Logger
}

// NewSlotStore stores the ledger under SlotName in slot.
func NewSlotStore(slot Slot, logger *slog.Logger) *SlotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlotStore{
		slot:   slot,
		key:    SlotName,
		logger: logger.With(applog.FieldComponent, applog.ComponentStorage),
	}
}

// Load implements Store. Slot read errors are returned; a payload that does
// not decode is logged and treated as no history.
func (s *SlotStore) Load(ctx context.Context) ([]core.Transaction, error) {
	payload, found, err := s.slot.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", s.key, err)
	}
	if !found {
		s.logger.InfoContext(ctx, "No saved ledger found, starting empty", "slot", s.key)
		return []core.Transaction{}, nil
	}

	records, err := DecodeRecords(payload)
	if err != nil {
		if errors.Is(err, ErrCorruptPayload) {
			s.logger.WarnContext(ctx, "Saved ledger is unreadable, starting empty",
				"slot", s.key,
				"payload_bytes", len(payload),
				applog.FieldError, err)
			return []core.Transaction{}, nil
		}
		return nil, err
	}
	if records == nil {
		records = []core.Transaction{}
	}

	s.logger.DebugContext(ctx, "Ledger loaded", "slot", s.key, "records", len(records))
	return records, nil
}

// Save implements Store.
func (s *SlotStore) Save(ctx context.Context, records []core.Transaction) error {
	payload, err := EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := s.slot.Put(ctx, s.key, payload); err != nil {
		return fmt.Errorf("write slot %s: %w", s.key, err)
	}

	s.logger.DebugContext(ctx, "Ledger saved", "slot", s.key, "records", len(records), "payload_bytes", len(payload))
	return nil
}
