package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memSink struct {
	mu     sync.Mutex
	events map[string]storage.LedgerEvent
	err    error
}

func newMemSink() *memSink {
	return &memSink{events: make(map[string]storage.LedgerEvent)}
}

func (s *memSink) AppendEvent(_ context.Context, e storage.LedgerEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.events[e.EventID]; ok {
		return false, nil
	}
	s.events[e.EventID] = e
	return true, nil
}

func (s *memSink) CountEvents(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events)), s.err
}

// chanSource delivers queued messages, then blocks until ctx is done.
type chanSource struct {
	msgs    []*amqp.LedgerEventMessage
	handled chan error
	err     error
}

func (s *chanSource) ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error {
	if s.err != nil {
		return s.err
	}
	for _, m := range s.msgs {
		s.handled <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func sampleEvent(kind string) *amqp.LedgerEventMessage {
	tx := core.Transaction{ID: 3, Title: "Rent", Amount: core.Money{Cents: 90000}, Type: core.Expense, Category: core.Bills, Date: core.NewDate(2025, 10, 1)}
	return amqp.NewLedgerEventMessage(kind, tx, core.Money{Cents: 110000}, 4)
}

func TestAuditWorker_HandleLedgerEvent(t *testing.T) {
	ctx := context.Background()
	sink := newMemSink()
	w := NewAuditWorker(sink, discard)

	msg := sampleEvent(amqp.EventCreated)
	if err := w.HandleLedgerEvent(ctx, msg); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}
	if err := w.HandleLedgerEvent(ctx, msg); err != nil {
		t.Fatalf("redelivery should be acknowledged: %v", err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	got := sink.events[msg.EventID]
	if got.Kind != "created" || got.TransactionID != 3 || got.Category != "bills" || got.AmountCents != 90000 || got.BalanceCents != 110000 || got.Version != 4 {
		t.Errorf("stored event = %+v", got)
	}
	if !got.OccurredAt.Equal(msg.Timestamp) {
		t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, msg.Timestamp)
	}
}

func TestAuditWorker_InvalidEventsAreDropped(t *testing.T) {
	ctx := context.Background()
	sink := newMemSink()
	w := NewAuditWorker(sink, discard)

	tests := []struct {
		name   string
		mutate func(*amqp.LedgerEventMessage)
	}{
		{"missing id", func(m *amqp.LedgerEventMessage) { m.EventID = "" }},
		{"unknown kind", func(m *amqp.LedgerEventMessage) { m.Kind = "updated" }},
		{"zero amount", func(m *amqp.LedgerEventMessage) { m.AmountCents = 0 }},
		{"no timestamp", func(m *amqp.LedgerEventMessage) { m.Timestamp = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := sampleEvent(amqp.EventDeleted)
			tt.mutate(msg)
			if err := w.HandleLedgerEvent(ctx, msg); err != nil {
				t.Errorf("invalid events must not be requeued: %v", err)
			}
		})
	}
	if err := validate(nil); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("validate(nil) = %v", err)
	}
	if len(sink.events) != 0 {
		t.Errorf("invalid events stored: %d", len(sink.events))
	}
}

func TestAuditWorker_SinkErrorRequeues(t *testing.T) {
	sink := newMemSink()
	sink.err = errors.New("database is locked")
	w := NewAuditWorker(sink, discard)

	err := w.HandleLedgerEvent(context.Background(), sampleEvent(amqp.EventCreated))
	if !errors.Is(err, sink.err) {
		t.Errorf("err = %v, want wrapped sink error", err)
	}
	if err := w.Report(context.Background()); err == nil {
		t.Error("Report should surface count errors")
	}
}

func TestAuditWorker_Run(t *testing.T) {
	sink := newMemSink()
	w := NewAuditWorker(sink, discard)
	src := &chanSource{
		msgs:    []*amqp.LedgerEventMessage{sampleEvent(amqp.EventCreated), sampleEvent(amqp.EventDeleted)},
		handled: make(chan error, 2),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, src, 10*time.Millisecond) }()

	for i := 0; i < 2; i++ {
		if err := <-src.handled; err != nil {
			t.Fatalf("handler error: %v", err)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if n, _ := sink.CountEvents(context.Background()); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

func TestAuditWorker_RunConsumerFailure(t *testing.T) {
	w := NewAuditWorker(newMemSink(), discard)
	src := &chanSource{err: errors.New("channel closed")}

	err := w.Run(context.Background(), src, time.Hour)
	if err == nil || err.Error() != "channel closed" {
		t.Errorf("Run() = %v, want consumer error", err)
	}
}

func TestAuditWorker_WithSQLite(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	w := NewAuditWorker(repo, discard)
	created := sampleEvent(amqp.EventCreated)
	deleted := sampleEvent(amqp.EventDeleted)
	deleted.Version = 5

	for _, m := range []*amqp.LedgerEventMessage{created, created, deleted} {
		if err := w.HandleLedgerEvent(ctx, m); err != nil {
			t.Fatalf("HandleLedgerEvent: %v", err)
		}
	}

	trail, err := repo.EventsForTransaction(ctx, 3)
	if err != nil {
		t.Fatalf("EventsForTransaction: %v", err)
	}
	if len(trail) != 2 || trail[0].Kind != "created" || trail[1].Kind != "deleted" {
		t.Errorf("trail = %+v", trail)
	}
}
