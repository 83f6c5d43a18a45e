package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/persistence"
)

// EventPublisher announces ledger mutations. *amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
	Close() error
}

// LedgerService orchestrates the in-memory ledger, its store and the event bus.
// Mutations are serialized so saves always reach the store in order.
type LedgerService struct {
	mu        sync.Mutex
	ledger    *ledger.Ledger
	store     persistence.Store
	publisher EventPublisher
	version   atomic.Int64
	logger    *slog.Logger
}

// Open loads the saved history and returns a ready service. A store that
// cannot be read yields an empty ledger rather than an error. publisher may
// be nil.
func Open(ctx context.Context, store persistence.Store, publisher EventPublisher, logger *slog.Logger, opts ...ledger.Option) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(applog.FieldComponent, applog.ComponentLedger)

	records, err := store.Load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load ledger, starting empty",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err)
		records = nil
	}

	l, dropped := ledger.NewFromRecords(records, opts...)
	if dropped > 0 {
		logger.WarnContext(ctx, "Dropped invalid saved records", "dropped", dropped)
	}
	logger.InfoContext(ctx, "Ledger opened",
		applog.FieldRecords, l.Len(),
		"zero_fill", l.ZeroFill())

	return &LedgerService{
		ledger:    l,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// AddIncome records an income. An empty title becomes the default title.
func (s *LedgerService) AddIncome(ctx context.Context, title, amount, date string) (core.Transaction, core.Snapshot, error) {
	return s.AddTransaction(ctx, core.TransactionInput{
		Title:  title,
		Amount: amount,
		Type:   core.Income,
		Date:   date,
	})
}

// AddExpense records an expense in category.
func (s *LedgerService) AddExpense(ctx context.Context, title, amount string, category core.Category, date string) (core.Transaction, core.Snapshot, error) {
	return s.AddTransaction(ctx, core.TransactionInput{
		Title:    title,
		Amount:   amount,
		Type:     core.Expense,
		Category: category,
		Date:     date,
	})
}

// AddTransaction validates and records in, persists the new sequence and
// publishes a created event. Errors wrap ledger.ErrInvalidInput.
func (s *LedgerService) AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, core.Snapshot, error) {
	s.mu.Lock()
	tx, snap, err := s.ledger.Add(in)
	if err != nil {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Transaction rejected",
			applog.FieldOperation, applog.OpCreate,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return core.Transaction{}, snap, err
	}
	version := s.version.Add(1)
	s.saveLocked(ctx)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction added", applog.NewFields().
		WithTransaction(tx.ID, string(tx.Type), tx.Amount.Cents, string(tx.Category)).
		WithLedgerState(snap.Count, snap.Balance.Cents, version).
		ToSlice()...)

	s.publish(ctx, amqp.NewLedgerEventMessage(amqp.EventCreated, tx, snap.Balance, version))
	return tx, snap, nil
}

// DeleteTransaction removes the record with id. Unknown ids return an error
// wrapping ledger.ErrNotFound.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) (core.Snapshot, error) {
	s.mu.Lock()
	tx, _ := s.ledger.Get(id)
	snap, err := s.ledger.Delete(id)
	if err != nil {
		s.mu.Unlock()
		return snap, err
	}
	version := s.version.Add(1)
	s.saveLocked(ctx)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction deleted", applog.NewFields().
		WithTransaction(tx.ID, string(tx.Type), tx.Amount.Cents, string(tx.Category)).
		WithLedgerState(snap.Count, snap.Balance.Cents, version).
		ToSlice()...)

	s.publish(ctx, amqp.NewLedgerEventMessage(amqp.EventDeleted, tx, snap.Balance, version))
	return snap, nil
}

// saveLocked writes the full sequence. A failed save keeps the in-memory
// mutation; the next successful save catches the store up.
func (s *LedgerService) saveLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.ledger.Records()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save ledger",
			applog.FieldOperation, applog.OpSave,
			applog.FieldErrorType, applog.ErrorTypeDatabase,
			applog.FieldError, err)
	}
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerEventMessage) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping event", "event_id", msg.EventID)
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldErrorType, applog.ErrorTypeNetwork,
			"event_id", msg.EventID,
			applog.FieldError, err)
	}
}

// Records returns the sequence, newest first.
func (s *LedgerService) Records() []core.Transaction {
	return s.ledger.Records()
}

func (s *LedgerService) Snapshot() core.Snapshot {
	return s.ledger.Snapshot()
}

// State returns records, snapshot and version as one consistent view.
func (s *LedgerService) State() ([]core.Transaction, core.Snapshot, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, snap := s.ledger.State()
	return records, snap, s.version.Load()
}

// TopCategories ranks expense categories by total spent. limit <= 0 returns
// every category with spending.
func (s *LedgerService) TopCategories(limit int) []core.CategoryAmount {
	return ledger.TopExpensesByCategory(s.ledger.Records(), limit)
}

// Version counts successful mutations since Open.
func (s *LedgerService) Version() int64 {
	return s.version.Load()
}

// Close performs a final save and closes the publisher.
func (s *LedgerService) Close(ctx context.Context) error {
	var errs []error

	s.mu.Lock()
	if err := s.store.Save(ctx, s.ledger.Records()); err != nil {
		errs = append(errs, fmt.Errorf("final save: %w", err))
	}
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
