/*
Package sqlite provides a SQLite-backed implementation of tuition.Store.

PURPOSE:
  Persists subjects, balance records and the payment ledger. The same SQL
  works on PostgreSQL apart from minor dialect differences.

KEY TABLES:
  subjects:         Identities tuition is charged to
  balance_records:  One row per tuition charge, balance mutated by payments
  payments:         Append-only payment ledger

ORDERING:
  balance_records.id is an INTEGER PRIMARY KEY AUTOINCREMENT, so ORDER BY id
  is creation order. Allocation depends on this. payments rows are never
  deleted, so rowid is append order and history is read by it.

APPEND-ONLY ENFORCEMENT:
  There are no UPDATE or DELETE statements on the payments table.

CONCURRENCY:
  Uses sync.RWMutex around statements. Per (subject, term) serialization
  of a whole payment is the allocator's job, not the store's.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/tuition.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  allocator := tuition.NewAllocator(store)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/tuition"
)

// Store implements tuition.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ tuition.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A ":memory:" database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := newWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func newWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balance_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL REFERENCES subjects(id),
		term TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: allocation looks up records by subject+term in id order
	CREATE INDEX IF NOT EXISTS idx_balance_records_subject_term
		ON balance_records(subject_id, term, id);

	CREATE INDEX IF NOT EXISTS idx_balance_records_term
		ON balance_records(term, id);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL REFERENCES subjects(id),
		term TEXT NOT NULL,
		amount_requested TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_subject_term
		ON payments(subject_id, term, recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SUBJECTS
// =============================================================================

func (s *Store) SaveSubject(ctx context.Context, subj tuition.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := subj.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, created_at) VALUES (?, ?, ?)`,
		string(subj.ID), subj.Name, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return tuition.ErrSubjectExists
		}
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, id tuition.SubjectID) (*tuition.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		subj      tuition.Subject
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM subjects WHERE id = ?`, string(id),
	).Scan(&subj.ID, &subj.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	subj.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &subj, nil
}

func (s *Store) SubjectExists(ctx context.Context, id tuition.SubjectID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE id = ?`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check subject: %w", err)
	}
	return true, nil
}

func (s *Store) CountSubjects(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subjects: %w", err)
	}
	return n, nil
}

// =============================================================================
// BALANCE RECORDS
// =============================================================================

const recordColumns = `id, subject_id, term, total_amount, balance, created_at`

func (s *Store) AddBalanceRecord(ctx context.Context, r tuition.BalanceRecord) (tuition.BalanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO balance_records (subject_id, term, total_amount, balance, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(r.SubjectID), string(r.Term), r.TotalAmount.String(), r.Balance.String(),
		r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return tuition.BalanceRecord{}, fmt.Errorf("insert balance record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return tuition.BalanceRecord{}, fmt.Errorf("balance record id: %w", err)
	}
	r.ID = tuition.RecordID(id)
	return r, nil
}

func (s *Store) BalanceRecords(ctx context.Context, subjectID tuition.SubjectID, term tuition.Term) ([]tuition.BalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM balance_records WHERE subject_id = ? AND term = ? ORDER BY id ASC`,
		string(subjectID), string(term))
	if err != nil {
		return nil, fmt.Errorf("query balance records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) SubjectRecords(ctx context.Context, subjectID tuition.SubjectID) ([]tuition.BalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM balance_records WHERE subject_id = ? ORDER BY id ASC`,
		string(subjectID))
	if err != nil {
		return nil, fmt.Errorf("query subject records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) UpdateBalance(ctx context.Context, id tuition.RecordID, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE balance_records SET balance = ? WHERE id = ?`, balance.String(), int64(id))
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n == 0 {
		return tuition.ErrRecordNotFound
	}
	return nil
}

// UnpaidRecords compares balances as text-encoded decimals, so the positive
// filter is applied in Go rather than SQL.
func (s *Store) UnpaidRecords(ctx context.Context, term tuition.Term, limit, offset int) ([]tuition.BalanceRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM balance_records WHERE term = ? ORDER BY id ASC`, string(term))
	if err != nil {
		return nil, 0, fmt.Errorf("query unpaid records: %w", err)
	}
	defer rows.Close()

	all, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	unpaid := all[:0]
	for _, r := range all {
		if r.IsOutstanding() {
			unpaid = append(unpaid, r)
		}
	}
	total := len(unpaid)
	if offset < 0 || offset >= total {
		return []tuition.BalanceRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return unpaid[offset:end], total, nil
}

func scanRecords(rows *sql.Rows) ([]tuition.BalanceRecord, error) {
	var result []tuition.BalanceRecord
	for rows.Next() {
		var (
			r                     tuition.BalanceRecord
			id                    int64
			total, bal, createdAt string
		)
		if err := rows.Scan(&id, &r.SubjectID, &r.Term, &total, &bal, &createdAt); err != nil {
			return nil, fmt.Errorf("scan balance record: %w", err)
		}
		r.ID = tuition.RecordID(id)
		var err error
		if r.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("record %d total_amount: %w", id, err)
		}
		if r.Balance, err = decimal.NewFromString(bal); err != nil {
			return nil, fmt.Errorf("record %d balance: %w", id, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

func (s *Store) AppendPayment(ctx context.Context, e tuition.PaymentLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, subject_id, term, amount_requested, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		string(e.ID), string(e.SubjectID), string(e.Term), e.AmountRequested.String(),
		e.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Store) Payments(ctx context.Context, subjectID tuition.SubjectID, term tuition.Term) ([]tuition.PaymentLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, subject_id, term, amount_requested, recorded_at FROM payments WHERE subject_id = ?`
	args := []any{string(subjectID)}
	if term != "" {
		query += ` AND term = ?`
		args = append(args, string(term))
	}
	query += ` ORDER BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var result []tuition.PaymentLedgerEntry
	for rows.Next() {
		var (
			e                  tuition.PaymentLedgerEntry
			amount, recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Term, &amount, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if e.AmountRequested, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s amount: %w", e.ID, err)
		}
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		result = append(result, e)
	}
	return result, rows.Err()
}
