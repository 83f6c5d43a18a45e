package persistence

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"ledger/internal/core"
)

func sample() []core.Transaction {
	return []core.Transaction{
		{ID: 1760000000123, Title: "Groceries", Amount: core.Money{Cents: 12050}, Type: core.Expense, Category: core.Food, Date: core.NewDate(2025, 10, 1)},
		{ID: 2, Title: "Salary", Amount: core.Money{Cents: 200000}, Type: core.Income, Category: core.Salary, Date: core.NewDate(2025, 10, 3)},
		{ID: 1, Title: "Coffee", Amount: core.Money{Cents: 1}, Type: core.Expense, Category: core.Other, Date: core.NewDate(2024, 2, 29)},
		{ID: 4, Title: "Café ☕ crème brûlée", Amount: core.Money{Cents: core.MaxCents}, Type: core.Expense, Category: core.Food, Date: core.NewDate(2023, 12, 31)},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sample()
	data, err := EncodeRecords(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeRecords(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestEncodeFormat(t *testing.T) {
	data, err := EncodeRecords(sample()[:1])
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"id":1760000000123,"title":"Groceries","amount":120.5,"type":"expense","category":"food","date":"2025-10-01"}]`
	if string(data) != want {
		t.Fatalf("encoded = %s\nwant      %s", data, want)
	}

	empty, err := EncodeRecords(nil)
	if err != nil || string(empty) != "[]" {
		t.Fatalf("empty ledger encodes as %q (err=%v)", empty, err)
	}
}

func TestDecodeLegacyPayload(t *testing.T) {
	// Records written before categories existed.
	payload := `[
		{"id": 1, "title": "Groceries", "amount": 120, "type": "expense", "date": "2025-10-01"},
		{"id": "2", "title": "Salary", "amount": "2000.00", "type": "income", "date": "2025-10-03"}
	]`
	out, err := DecodeRecords([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Category != core.Other || out[0].Amount.Cents != 12000 {
		t.Fatalf("legacy expense = %+v", out[0])
	}
	if out[1].ID != 2 || out[1].Category != core.Salary || out[1].Amount.Cents != 200000 {
		t.Fatalf("legacy income = %+v", out[1])
	}
}

func TestDecodeCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{{`,
		"object":         `{"id":1}`,
		"negative":       `[{"id":1,"title":"x","amount":-5,"type":"expense","category":"food","date":"2025-10-01"}]`,
		"zero":           `[{"id":1,"title":"x","amount":0,"type":"income","date":"2025-10-01"}]`,
		"bad type":       `[{"id":1,"title":"x","amount":5,"type":"gift","date":"2025-10-01"}]`,
		"bad date":       `[{"id":1,"title":"x","amount":5,"type":"income","date":"yesterday"}]`,
		"bad category":   `[{"id":1,"title":"x","amount":5,"type":"expense","category":"yachts","date":"2025-10-01"}]`,
		"fractional id":  `[{"id":1.5,"title":"x","amount":5,"type":"income","date":"2025-10-01"}]`,
		"missing amount": `[{"id":1,"title":"x","type":"income","date":"2025-10-01"}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeRecords([]byte(payload)); !errors.Is(err, ErrCorruptPayload) {
				t.Fatalf("expected ErrCorruptPayload, got %v", err)
			}
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, payload := range []string{"", "  \n", "[]"} {
		out, err := DecodeRecords([]byte(payload))
		if err != nil || len(out) != 0 {
			t.Fatalf("%q: out=%v err=%v", payload, out, err)
		}
	}
	if _, err := DecodeRecords([]byte(strings.Repeat(" ", 3) + "null")); err != nil {
		t.Fatalf("null payload: %v", err)
	}
}
