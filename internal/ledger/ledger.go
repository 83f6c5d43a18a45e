// Package ledger owns the ordered transaction set and its derived snapshot.
//
// A Ledger is mutated only through Add and Delete. Both recompute the
// snapshot from the complete record set before returning, under the same
// lock, so readers never observe aggregates that disagree with the records.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"ledger/internal/core"
)

var (
	// ErrInvalidInput wraps the core validation error that rejected an add.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("transaction not found")
)

type Option func(*Ledger)

// WithClock sets the source of "today" for transactions added without a date.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithZeroFill controls whether snapshots list categories without spending.
func WithZeroFill(zeroFill bool) Option {
	return func(l *Ledger) {
		l.zeroFill = zeroFill
	}
}

type Ledger struct {
	mu       sync.Mutex
	records  []core.Transaction // newest first
	snapshot core.Snapshot
	nextID   int64
	zeroFill bool
	now      func() time.Time
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		nextID:   1,
		zeroFill: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.snapshot = ComputeAggregates(nil, l.zeroFill)
	return l
}

// NewFromRecords hydrates a ledger from a previously saved sequence, keeping
// its order. Records that fail validation, repeat an id or would push a
// total past core.MaxCents are dropped and counted in the second return
// value.
func NewFromRecords(records []core.Transaction, opts ...Option) (*Ledger, int) {
	l := New(opts...)

	seen := make(map[int64]struct{}, len(records))
	kept := make([]core.Transaction, 0, len(records))
	dropped := 0
	var totals core.Snapshot
	for _, r := range records {
		if _, dup := seen[r.ID]; dup || r.Validate() != nil || !fits(totals, r) {
			dropped++
			continue
		}
		seen[r.ID] = struct{}{}
		kept = append(kept, r)
		totals = accumulate(totals, r)
		if r.ID >= l.nextID {
			l.nextID = r.ID + 1
		}
	}

	l.records = kept
	l.snapshot = ComputeAggregates(l.records, l.zeroFill)
	return l, dropped
}

// Add validates the intent, records a new transaction at the head of the
// sequence and returns it with the recomputed snapshot. A rejected intent
// leaves the ledger untouched and returns an error wrapping ErrInvalidInput.
func (l *Ledger) Add(in core.TransactionInput) (core.Transaction, core.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.build(in)
	if err != nil {
		return core.Transaction{}, l.snapshot.Clone(), fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !fits(l.snapshot, tx) {
		return core.Transaction{}, l.snapshot.Clone(), fmt.Errorf("%w: %w", ErrInvalidInput, core.ErrTotalOverflow)
	}

	tx.ID = l.nextID
	l.nextID++

	records := make([]core.Transaction, 0, len(l.records)+1)
	records = append(records, tx)
	records = append(records, l.records...)
	l.records = records
	l.snapshot = ComputeAggregates(l.records, l.zeroFill)

	return tx, l.snapshot.Clone(), nil
}

// build checks the intent in a fixed order: amount, type, title encoding,
// expense title, expense category, then the optional date.
func (l *Ledger) build(in core.TransactionInput) (core.Transaction, error) {
	amount, err := core.ParseMoney(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	typ, err := core.ParseTransactionType(string(in.Type))
	if err != nil {
		return core.Transaction{}, err
	}
	if !utf8.ValidString(in.Title) {
		return core.Transaction{}, core.ErrInvalidTitle
	}

	tx := core.Transaction{
		Title:  strings.TrimSpace(in.Title),
		Amount: amount,
		Type:   typ,
	}

	switch typ {
	case core.Expense:
		if tx.Title == "" {
			return core.Transaction{}, core.ErrEmptyTitle
		}
		category, ok := core.ParseCategory(string(in.Category))
		if !ok {
			return core.Transaction{}, core.ErrInvalidCategory
		}
		tx.Category = category
	case core.Income:
		if tx.Title == "" {
			tx.Title = core.DefaultIncomeTitle
		}
		tx.Category = core.Salary
	}

	if strings.TrimSpace(in.Date) == "" {
		tx.Date = core.DateOf(l.now())
	} else {
		if tx.Date, err = core.ParseDate(in.Date); err != nil {
			return core.Transaction{}, err
		}
	}

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// Delete removes the record with the given id and returns the recomputed
// snapshot. Unknown ids return ErrNotFound and change nothing.
func (l *Ledger) Delete(id int64) (core.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(id)
	if idx < 0 {
		return l.snapshot.Clone(), fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	records := make([]core.Transaction, 0, len(l.records)-1)
	records = append(records, l.records[:idx]...)
	records = append(records, l.records[idx+1:]...)
	l.records = records
	l.snapshot = ComputeAggregates(l.records, l.zeroFill)

	return l.snapshot.Clone(), nil
}

// fits reports whether recording tx keeps the matching total of s within
// core.MaxCents. Category totals and the balance are bounded by the totals.
func fits(s core.Snapshot, tx core.Transaction) bool {
	if tx.IsIncome() {
		return s.TotalIncome.FitsWith(tx.Amount)
	}
	return s.TotalExpense.FitsWith(tx.Amount)
}

func accumulate(s core.Snapshot, tx core.Transaction) core.Snapshot {
	if tx.IsIncome() {
		s.TotalIncome = s.TotalIncome.Add(tx.Amount)
	} else {
		s.TotalExpense = s.TotalExpense.Add(tx.Amount)
	}
	return s
}

func (l *Ledger) indexOf(id int64) int {
	for i, r := range l.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the record with the given id.
func (l *Ledger) Get(id int64) (core.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx := l.indexOf(id); idx >= 0 {
		return l.records[idx], true
	}
	return core.Transaction{}, false
}

// Records returns a copy of the sequence, newest first.
func (l *Ledger) Records() []core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyRecords()
}

// Snapshot returns a copy of the current aggregates.
func (l *Ledger) Snapshot() core.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot.Clone()
}

// State returns records and snapshot read under one lock.
func (l *Ledger) State() ([]core.Transaction, core.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyRecords(), l.snapshot.Clone()
}

func (l *Ledger) copyRecords() []core.Transaction {
	out := make([]core.Transaction, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// ZeroFill reports the category policy the ledger was built with.
func (l *Ledger) ZeroFill() bool {
	return l.zeroFill
}
