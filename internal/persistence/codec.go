package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// ErrCorruptPayload is returned by DecodeRecords for payloads that cannot be
// turned back into records.
var ErrCorruptPayload = errors.New("corrupt ledger payload")

// record is the serialized form of a transaction. Amount is a positive
// decimal in major units; id may arrive as a number or a numeric string.
type record struct {
	ID       json.Number `json:"id"`
	Title    string      `json:"title"`
	Amount   json.Number `json:"amount"`
	Type     string      `json:"type"`
	Category string      `json:"category,omitempty"`
	Date     string      `json:"date"`
}

// EncodeRecords serializes records as a JSON array in the given order.
func EncodeRecords(records []core.Transaction) ([]byte, error) {
	out := make([]record, len(records))
	for i, r := range records {
		out[i] = record{
			ID:       json.Number(strconv.FormatInt(r.ID, 10)),
			Title:    r.Title,
			Amount:   json.Number(r.Amount.Decimal().String()),
			Type:     string(r.Type),
			Category: string(r.Category),
			Date:     r.Date.String(),
		}
	}
	return json.Marshal(out)
}

// DecodeRecords parses a payload written by EncodeRecords. An empty payload
// decodes to no records. Expenses saved without a category are read as
// "other" and incomes always as "salary"; any other malformed field makes
// the whole payload corrupt.
func DecodeRecords(data []byte) ([]core.Transaction, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	}

	out := make([]core.Transaction, 0, len(raw))
	for i, r := range raw {
		tx, err := r.toTransaction()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrCorruptPayload, i, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r record) toTransaction() (core.Transaction, error) {
	id, err := strconv.ParseInt(r.ID.String(), 10, 64)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("id %q: %w", r.ID, err)
	}

	amount, err := decimal.NewFromString(r.Amount.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", r.Amount, core.ErrInvalidAmount)
	}
	cents, err := core.DecimalToCents(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", r.Amount, err)
	}

	typ, err := core.ParseTransactionType(r.Type)
	if err != nil {
		return core.Transaction{}, err
	}

	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		ID:     id,
		Title:  r.Title,
		Amount: core.Money{Cents: cents},
		Type:   typ,
		Date:   date,
	}
	switch typ {
	case core.Income:
		tx.Category = core.Salary
	case core.Expense:
		if r.Category == "" {
			tx.Category = core.Other
			break
		}
		c, ok := core.ParseCategory(r.Category)
		if !ok {
			return core.Transaction{}, fmt.Errorf("category %q: %w", r.Category, core.ErrInvalidCategory)
		}
		tx.Category = c
	}
	return tx, nil
}
