package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// LedgerEventMessage announces one successful ledger mutation. It carries
// the affected record and the balance right after the change so consumers
// never need to read the ledger back.
type LedgerEventMessage struct {
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	TransactionID int64     `json:"transaction_id"`
	Type          string    `json:"type"`
	Category      string    `json:"category,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	BalanceCents  int64     `json:"balance_cents"`
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEventMessage builds a message with a fresh event id.
func NewLedgerEventMessage(kind string, tx core.Transaction, balance core.Money, version int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		EventID:       uuid.NewString(),
		Kind:          kind,
		TransactionID: tx.ID,
		Type:          string(tx.Type),
		Category:      string(tx.Category),
		AmountCents:   tx.Amount.Cents,
		BalanceCents:  balance.Cents,
		Version:       version,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
