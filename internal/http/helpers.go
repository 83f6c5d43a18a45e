package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ledger/internal/core"
)

type transactionJSON struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Amount   string `json:"amount"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Date     string `json:"date"`
}

type snapshotJSON struct {
	Balance        string            `json:"balance"`
	TotalIncome    string            `json:"total_income"`
	TotalExpense   string            `json:"total_expense"`
	CategoryTotals map[string]string `json:"category_totals"`
	Count          int               `json:"count"`
}

type categoryJSON struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:       tx.ID,
		Title:    tx.Title,
		Amount:   tx.Amount.String(),
		Type:     string(tx.Type),
		Category: string(tx.Category),
		Date:     tx.Date.String(),
	}
}

func toTransactionsJSON(records []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, len(records))
	for i, r := range records {
		out[i] = toTransactionJSON(r)
	}
	return out
}

func toSnapshotJSON(s core.Snapshot) snapshotJSON {
	totals := make(map[string]string, len(s.CategoryTotals))
	for c, m := range s.CategoryTotals {
		totals[string(c)] = m.String()
	}
	return snapshotJSON{
		Balance:        s.Balance.String(),
		TotalIncome:    s.TotalIncome.String(),
		TotalExpense:   s.TotalExpense.String(),
		CategoryTotals: totals,
		Count:          s.Count,
	}
}

func toCategoriesJSON(ranked []core.CategoryAmount) []categoryJSON {
	out := make([]categoryJSON, len(ranked))
	for i, c := range ranked {
		out[i] = categoryJSON{Name: string(c.Name), Amount: c.Amount.String()}
	}
	return out
}

// transactionRequest is the body of POST /api/transactions. Amount accepts
// a JSON string ("120.50", "120,50") or a JSON number.
type transactionRequest struct {
	Title    string          `json:"title"`
	Amount   json.RawMessage `json:"amount"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

func (req transactionRequest) toInput() (core.TransactionInput, error) {
	amount, err := amountText(req.Amount)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Title:    sanitizeInput(req.Title),
		Amount:   amount,
		Type:     core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Category: core.Category(strings.TrimSpace(req.Category)),
		Date:     strings.TrimSpace(req.Date),
	}, nil
}

var errAmountFormat = errors.New("amount must be a string or a number")

func amountText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errAmountFormat
		}
		return strings.TrimSpace(s), nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", errAmountFormat
	}
	return n.String(), nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("malformed JSON body: trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}

func writeRateLimited(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
}

// sanitizeInput trims and removes control characters except tab, newline
// and carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
