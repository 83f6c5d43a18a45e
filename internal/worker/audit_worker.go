// Package worker records ledger events published by the API into the audit
// trail.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	applog "ledger/internal/log"
	"ledger/internal/storage"
)

// ErrInvalidEvent marks messages that can never be recorded.
var ErrInvalidEvent = errors.New("invalid ledger event")

// EventSink stores audited events. *storage.SQLiteRepository implements it.
type EventSink interface {
	AppendEvent(ctx context.Context, e storage.LedgerEvent) (bool, error)
	CountEvents(ctx context.Context) (int64, error)
}

// EventSource delivers ledger events until ctx is done. *amqp.Client
// implements it.
type EventSource interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error
}

type AuditWorker struct {
	sink   EventSink
	logger *slog.Logger
}

func NewAuditWorker(sink EventSink, logger *slog.Logger) *AuditWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWorker{
		sink:   sink,
		logger: logger.With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandleLedgerEvent appends msg to the audit trail. Redelivered events are
// acknowledged without a second row.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if err := validate(msg); err != nil {
		// Requeueing would loop forever; log and drop.
		w.logger.WarnContext(ctx, "Dropping invalid ledger event",
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return nil
	}

	inserted, err := w.sink.AppendEvent(ctx, storage.LedgerEvent{
		EventID:       msg.EventID,
		Kind:          msg.Kind,
		TransactionID: msg.TransactionID,
		Type:          msg.Type,
		Category:      msg.Category,
		AmountCents:   msg.AmountCents,
		BalanceCents:  msg.BalanceCents,
		Version:       msg.Version,
		OccurredAt:    msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("append ledger event %s: %w", msg.EventID, err)
	}
	if !inserted {
		w.logger.DebugContext(ctx, "Duplicate ledger event ignored", "event_id", msg.EventID)
	}
	return nil
}

func validate(msg *amqp.LedgerEventMessage) error {
	switch {
	case msg == nil:
		return fmt.Errorf("%w: empty message", ErrInvalidEvent)
	case msg.EventID == "":
		return fmt.Errorf("%w: missing event id", ErrInvalidEvent)
	case msg.Kind != amqp.EventCreated && msg.Kind != amqp.EventDeleted:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, msg.Kind)
	case msg.AmountCents <= 0:
		return fmt.Errorf("%w: amount %d", ErrInvalidEvent, msg.AmountCents)
	case msg.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}

// Report logs the size of the audit trail.
func (w *AuditWorker) Report(ctx context.Context) error {
	n, err := w.sink.CountEvents(ctx)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	w.logger.InfoContext(ctx, "Audit trail status", "events", n)
	return nil
}

// Run consumes src and reports every interval until ctx is cancelled or the
// consumer fails. A cancelled ctx is not an error.
func (w *AuditWorker) Run(ctx context.Context, src EventSource, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return src.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.Report(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Periodic audit report failed", applog.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
