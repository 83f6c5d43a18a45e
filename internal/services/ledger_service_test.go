package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/persistence"
	"ledger/internal/persistence/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePublisher struct {
	mu      sync.Mutex
	msgs    []*amqp.LedgerEventMessage
	err     error
	closed  bool
	closeFn func() error
}

func (p *fakePublisher) PublishLedgerEvent(_ context.Context, msg *amqp.LedgerEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	if p.closeFn != nil {
		return p.closeFn()
	}
	return nil
}

type flakyStore struct {
	records []core.Transaction
	loadErr error
	saveErr error
	saves   int
}

func (s *flakyStore) Load(context.Context) ([]core.Transaction, error) {
	return s.records, s.loadErr
}

func (s *flakyStore) Save(_ context.Context, records []core.Transaction) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = records
	return nil
}

func clock() ledger.Option {
	return ledger.WithClock(func() time.Time { return time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC) })
}

func TestLedgerService_AddPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewSlotStore(memory.New(), discard)
	pub := &fakePublisher{}
	svc := Open(ctx, store, pub, discard, clock())

	income, snap, err := svc.AddIncome(ctx, "", "2000", "")
	if err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	if income.Title != core.DefaultIncomeTitle || income.Category != core.Salary {
		t.Errorf("income = %+v", income)
	}
	if snap.Balance.Cents != 200000 {
		t.Errorf("balance = %s, want 2000.00", snap.Balance)
	}

	expense, snap, err := svc.AddExpense(ctx, "Groceries", "120.50", core.Food, "2025-10-01")
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if snap.Balance.Cents != 187950 || snap.CategoryTotals[core.Food].Cents != 12050 {
		t.Errorf("snapshot = %+v", snap)
	}
	if svc.Version() != 2 {
		t.Errorf("Version() = %d, want 2", svc.Version())
	}

	saved, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved) != 2 || saved[0].ID != expense.ID || saved[1].ID != income.ID {
		t.Errorf("saved = %+v, want expense then income", saved)
	}

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.msgs))
	}
	last := pub.msgs[1]
	if last.Kind != amqp.EventCreated || last.TransactionID != expense.ID || last.BalanceCents != 187950 || last.Version != 2 {
		t.Errorf("last event = %+v", last)
	}
}

func TestLedgerService_RejectedInputChangesNothing(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{}
	pub := &fakePublisher{}
	svc := Open(ctx, store, pub, discard, clock())

	tests := []struct {
		name string
		in   core.TransactionInput
	}{
		{"zero amount", core.TransactionInput{Type: core.Income, Amount: "0"}},
		{"bad amount", core.TransactionInput{Type: core.Income, Amount: "abc"}},
		{"expense without title", core.TransactionInput{Type: core.Expense, Amount: "5", Category: core.Food}},
		{"unknown category", core.TransactionInput{Type: core.Expense, Title: "x", Amount: "5", Category: "gadgets"}},
		{"unknown type", core.TransactionInput{Type: "transfer", Amount: "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.AddTransaction(ctx, tt.in)
			if !errors.Is(err, ledger.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if store.saves != 0 || len(pub.msgs) != 0 || svc.Version() != 0 {
		t.Errorf("rejected adds had side effects: saves=%d events=%d version=%d", store.saves, len(pub.msgs), svc.Version())
	}
}

func TestLedgerService_Delete(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := Open(ctx, &flakyStore{}, pub, discard, clock())

	tx, _, err := svc.AddExpense(ctx, "Cinema", "15", core.Entertainment, "")
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if _, err := svc.DeleteTransaction(ctx, tx.ID+100); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("delete unknown: err = %v, want ErrNotFound", err)
	}
	if svc.Version() != 1 {
		t.Errorf("failed delete bumped version to %d", svc.Version())
	}

	snap, err := svc.DeleteTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if snap.Count != 0 || !snap.Balance.IsZero() {
		t.Errorf("snapshot after delete = %+v", snap)
	}
	if got := pub.msgs[len(pub.msgs)-1]; got.Kind != amqp.EventDeleted || got.TransactionID != tx.ID || got.Category != "entertainment" {
		t.Errorf("delete event = %+v", got)
	}
}

func TestLedgerService_SaveFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{saveErr: errors.New("disk full")}
	svc := Open(ctx, store, nil, discard, clock())

	if _, _, err := svc.AddIncome(ctx, "Salary", "100", ""); err != nil {
		t.Fatalf("AddIncome should succeed despite save failure: %v", err)
	}
	if len(svc.Records()) != 1 {
		t.Errorf("Records() = %d, want 1", len(svc.Records()))
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestLedgerService_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: amqp.ErrCircuitOpen}
	svc := Open(ctx, &flakyStore{}, pub, discard, clock())

	if _, _, err := svc.AddIncome(ctx, "", "1", ""); err != nil {
		t.Fatalf("AddIncome: %v", err)
	}
	if svc.Snapshot().Count != 1 {
		t.Error("mutation should be kept when publishing fails")
	}
}

func TestOpen_Hydration(t *testing.T) {
	ctx := context.Background()

	t.Run("load error starts empty", func(t *testing.T) {
		svc := Open(ctx, &flakyStore{loadErr: errors.New("unreachable")}, nil, discard)
		if len(svc.Records()) != 0 {
			t.Errorf("Records() = %v, want empty", svc.Records())
		}
	})

	t.Run("saved records are restored and ids continue", func(t *testing.T) {
		store := &flakyStore{records: []core.Transaction{
			{ID: 7, Title: "Rent", Amount: core.Money{Cents: 90000}, Type: core.Expense, Category: core.Bills, Date: core.NewDate(2025, 9, 1)},
			{ID: 3, Title: "Income", Amount: core.Money{Cents: 250000}, Type: core.Income, Category: core.Salary, Date: core.NewDate(2025, 8, 28)},
		}}
		svc := Open(ctx, store, nil, discard, clock())

		snap := svc.Snapshot()
		if snap.Balance.Cents != 160000 || snap.Count != 2 {
			t.Errorf("snapshot = %+v", snap)
		}
		tx, _, err := svc.AddExpense(ctx, "Bus", "2", core.Travel, "")
		if err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
		if tx.ID != 8 {
			t.Errorf("new id = %d, want 8", tx.ID)
		}
	})

	t.Run("open logs the category policy", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		Open(ctx, &flakyStore{}, nil, logger, ledger.WithZeroFill(false))
		if !strings.Contains(buf.String(), "zero_fill=false") {
			t.Errorf("open log = %q", buf.String())
		}
	})
}

func TestLedgerService_TopCategories(t *testing.T) {
	ctx := context.Background()
	svc := Open(ctx, &flakyStore{}, nil, discard, clock())

	for _, e := range []struct {
		amount   string
		category core.Category
	}{
		{"10", core.Food},
		{"50", core.Bills},
		{"5", core.Food},
		{"30", core.Travel},
	} {
		if _, _, err := svc.AddExpense(ctx, "item", e.amount, e.category, ""); err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
	}

	top := svc.TopCategories(2)
	if len(top) != 2 || top[0].Name != core.Bills || top[1].Name != core.Travel {
		t.Errorf("TopCategories(2) = %+v", top)
	}
	if all := svc.TopCategories(0); len(all) != 3 {
		t.Errorf("TopCategories(0) returned %d entries, want 3", len(all))
	}
}

func TestLedgerService_Close(t *testing.T) {
	ctx := context.Background()

	t.Run("final save and publisher closed", func(t *testing.T) {
		store := &flakyStore{}
		pub := &fakePublisher{}
		svc := Open(ctx, store, pub, discard)

		if err := svc.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if store.saves != 1 || !pub.closed {
			t.Errorf("saves=%d closed=%v", store.saves, pub.closed)
		}
	})

	t.Run("errors are joined", func(t *testing.T) {
		store := &flakyStore{saveErr: errors.New("disk full")}
		pub := &fakePublisher{closeFn: func() error { return errors.New("already closed") }}
		svc := Open(ctx, store, pub, discard)

		err := svc.Close(ctx)
		if err == nil {
			t.Fatal("Close should report both failures")
		}
		if !errors.Is(err, store.saveErr) {
			t.Errorf("err = %v, want it to wrap the save error", err)
		}
	})

	t.Run("nil publisher", func(t *testing.T) {
		svc := Open(ctx, &flakyStore{}, nil, discard)
		if err := svc.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
}

func TestLedgerService_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{}
	svc := Open(ctx, store, &fakePublisher{}, discard, clock())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.AddExpense(ctx, "coffee", "1.10", core.Food, ""); err != nil {
				t.Errorf("AddExpense: %v", err)
			}
		}()
	}
	wg.Wait()

	records, snap, version := svc.State()
	if len(records) != 50 || version != 50 {
		t.Fatalf("records=%d version=%d, want 50/50", len(records), version)
	}
	if snap.TotalExpense.Cents != 5500 {
		t.Errorf("total expense = %s, want 55.00", snap.TotalExpense)
	}
	if len(store.records) != 50 {
		t.Errorf("last save holds %d records, want 50", len(store.records))
	}
}
