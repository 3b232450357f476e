/*
store.go - Persistence interface for subjects, balance records and payments

PURPOSE:
  Defines the interface between the payment logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACE:
  Store: subjects (existence, create), balance records (ordered query,
         balance update), payment ledger (append-only)

ORDERING CONTRACT:
  BalanceRecords MUST return records in ascending RecordID order. The
  allocator relies on this to spend a payment in creation order; an
  arbitrary order would make allocation non-reproducible.

LEDGER CONTRACT:
  AppendPayment is the only write on the ledger. No update, no delete.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - tuition/store/memory.go: In-memory for tests and dev
*/
package tuition

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store handles persistence of tuition data.
type Store interface {
	// SaveSubject creates a subject. Returns ErrSubjectExists if present.
	SaveSubject(ctx context.Context, s Subject) error

	// GetSubject returns nil, nil when the subject does not exist.
	GetSubject(ctx context.Context, id SubjectID) (*Subject, error)

	SubjectExists(ctx context.Context, id SubjectID) (bool, error)

	CountSubjects(ctx context.Context) (int, error)

	// AddBalanceRecord persists a new record and returns it with its ID set.
	AddBalanceRecord(ctx context.Context, r BalanceRecord) (BalanceRecord, error)

	// BalanceRecords returns all records for subject+term in ascending ID order.
	BalanceRecords(ctx context.Context, subjectID SubjectID, term Term) ([]BalanceRecord, error)

	// SubjectRecords returns all records of a subject across terms.
	SubjectRecords(ctx context.Context, subjectID SubjectID) ([]BalanceRecord, error)

	// UpdateBalance overwrites the balance of one record.
	UpdateBalance(ctx context.Context, id RecordID, balance decimal.Decimal) error

	// UnpaidRecords pages through records of a term with a positive balance.
	UnpaidRecords(ctx context.Context, term Term, limit, offset int) ([]BalanceRecord, int, error)

	// AppendPayment writes a ledger entry. Append-only.
	AppendPayment(ctx context.Context, e PaymentLedgerEntry) error

	// Payments returns ledger entries for subject+term, oldest first.
	// An empty term returns every entry of the subject.
	Payments(ctx context.Context, subjectID SubjectID, term Term) ([]PaymentLedgerEntry, error)
}
