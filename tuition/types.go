/*
Package tuition provides the payment side of the tuition engine.

PURPOSE:
  Subjects (students) owe tuition per term. Each term may carry several
  balance records. Payments are allocated across those records and every
  successful payment is written to an append-only ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Subject: The identity that owes tuition (student number)
  - BalanceRecord: One tuition charge for a subject/term with its remaining balance
  - PaymentLedgerEntry: Immutable record of a payment request
  - TuitionStatus: Totals across all of a subject's records

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Type Safety: SubjectID, Term and RecordID are distinct types
  3. Ordering: RecordID is assigned in creation order and is the allocation order

SEE ALSO:
  - allocator.go: Payment allocation across balance records
  - store.go: Persistence interface
  - service.go: Query/add/unpaid operations
*/
package tuition

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SubjectID string
type Term string
type RecordID int64
type EntryID string

// NormalizeTerm upper-cases and trims a term so "2025-summer" and
// "2025-SUMMER " address the same records.
func NormalizeTerm(t string) Term {
	return Term(strings.ToUpper(strings.TrimSpace(t)))
}

// =============================================================================
// ENTITIES
// =============================================================================

// Subject is the identity tuition is charged to.
type Subject struct {
	ID        SubjectID
	Name      string
	CreatedAt time.Time
}

// BalanceRecord is one tuition charge.
// INVARIANT: 0 <= Balance <= TotalAmount.
type BalanceRecord struct {
	ID          RecordID
	SubjectID   SubjectID
	Term        Term
	TotalAmount decimal.Decimal
	Balance     decimal.Decimal
	CreatedAt   time.Time
}

// Paid returns how much of the record has been settled.
func (r BalanceRecord) Paid() decimal.Decimal {
	return r.TotalAmount.Sub(r.Balance)
}

func (r BalanceRecord) IsOutstanding() bool {
	return r.Balance.IsPositive()
}

// PaymentLedgerEntry records a payment request. Append-only.
// AmountRequested is the amount the caller asked to pay, which can exceed
// what was applied to balances (see Allocator.Allocate).
type PaymentLedgerEntry struct {
	ID              EntryID
	SubjectID       SubjectID
	Term            Term
	AmountRequested decimal.Decimal
	RecordedAt      time.Time
}

// =============================================================================
// READ MODELS
// =============================================================================

// TuitionStatus summarizes every record of a subject.
type TuitionStatus struct {
	SubjectID   SubjectID
	TotalAmount decimal.Decimal
	Balance     decimal.Decimal
}

func (s TuitionStatus) HasOutstanding() bool {
	return s.Balance.IsPositive()
}

// UnpaidPage is one page of records with a positive balance.
type UnpaidPage struct {
	Records []BalanceRecord
	Total   int
	Page    int
	Size    int
}

// SumBalances adds up the balances of records.
func SumBalances(records []BalanceRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Balance)
	}
	return total
}
