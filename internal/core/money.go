// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer minor units (cents) everywhere inside the
// ledger. Decimal text only appears at the edges: user input, the persisted
// record format and the HTTP API.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents bounds a single amount and every ledger total: one hundred
// billion in major units. Sums of in-range totals cannot overflow int64.
const MaxCents int64 = 10_000_000_000_000

var maxCents = decimal.NewFromInt(MaxCents)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Returns ErrInvalidAmount for empty,
// non-numeric, negative, zero or values above MaxCents.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("0.004") -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return DecimalToCents(d)
}

// DecimalToCents rounds d half-up to cents. The result is always positive.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxCents) || !cents.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseMoney is ParseDecimalToCents wrapped in a Money.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// Decimal returns the amount in major units, exact.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with two decimals, e.g. "-12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// FitsWith reports whether m + o stays within MaxCents. Both must be
// non-negative.
func (m Money) FitsWith(o Money) bool {
	return m.Cents <= MaxCents-o.Cents
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}
