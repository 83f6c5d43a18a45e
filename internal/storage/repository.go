package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LedgerEvent is one audited ledger mutation.
type LedgerEvent struct {
	EventID       string
	Kind          string
	TransactionID int64
	Type          string
	Category      string
	AmountCents   int64
	BalanceCents  int64
	Version       int64
	OccurredAt    time.Time
}

// SQLiteRepository keeps ledger slots and the audit trail in one database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get implements persistence.Slot
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM kv_slots WHERE slot = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slot: %w", err)
	}
	return payload, true, nil
}

// Put implements persistence.Slot
func (r *SQLiteRepository) Put(ctx context.Context, key string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_slots (slot, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		key, payload)
	if err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return nil
}

// AppendEvent stores e unless an event with the same id is already stored.
// It reports whether a row was inserted.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, e LedgerEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_events (
			event_id, kind, transaction_id, type, category,
			amount_cents, balance_cents, version, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.Kind, e.TransactionID, e.Type, e.Category,
		e.AmountCents, e.BalanceCents, e.Version, e.OccurredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert ledger event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		slog.DebugContext(ctx, "Ledger event already recorded", "event_id", e.EventID)
		return false, nil
	}

	slog.InfoContext(ctx, "Ledger event recorded",
		"event_id", e.EventID,
		"kind", e.Kind,
		"transaction_id", e.TransactionID,
		"version", e.Version)
	return true, nil
}

// CountEvents returns the number of audited events.
func (r *SQLiteRepository) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger events: %w", err)
	}
	return n, nil
}

// EventsForTransaction returns the audit trail of one transaction, oldest
// first. Versions restart with every ledger session, so occurred_at orders
// the trail and version only breaks ties within one session.
func (r *SQLiteRepository) EventsForTransaction(ctx context.Context, transactionID int64) ([]LedgerEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, kind, transaction_id, type, category,
		       amount_cents, balance_cents, version, occurred_at
		FROM ledger_events
		WHERE transaction_id = ?
		ORDER BY occurred_at, version, received_at`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var out []LedgerEvent
	for rows.Next() {
		var e LedgerEvent
		if err := rows.Scan(&e.EventID, &e.Kind, &e.TransactionID, &e.Type, &e.Category,
			&e.AmountCents, &e.BalanceCents, &e.Version, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
