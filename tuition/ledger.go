package tuition

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT LEDGER - Append-only payment log
// =============================================================================

// Ledger is the payment history of the system.
//
// INVARIANTS:
//   - Append-only: entries are never modified or deleted.
//   - One entry per successful Allocate call.
//   - AmountRequested is what the payer asked for, not what was applied.
type Ledger struct {
	Store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, now: time.Now}
}

// Record appends an entry for a payment request and returns it.
func (l *Ledger) Record(ctx context.Context, subjectID SubjectID, term Term, requested decimal.Decimal) (PaymentLedgerEntry, error) {
	entry := PaymentLedgerEntry{
		ID:              EntryID(uuid.NewString()),
		SubjectID:       subjectID,
		Term:            term,
		AmountRequested: requested,
		RecordedAt:      l.now(),
	}
	if err := l.Store.AppendPayment(ctx, entry); err != nil {
		return PaymentLedgerEntry{}, fmt.Errorf("append payment: %w", err)
	}
	return entry, nil
}

// History returns the entries of a subject, optionally limited to one term.
func (l *Ledger) History(ctx context.Context, subjectID SubjectID, term Term) ([]PaymentLedgerEntry, error) {
	return l.Store.Payments(ctx, subjectID, term)
}

// TotalRequested sums AmountRequested over the history of subject+term.
// Because overpayments are ledgered in full, this can exceed the amount
// actually applied to balance records.
func (l *Ledger) TotalRequested(ctx context.Context, subjectID SubjectID, term Term) (decimal.Decimal, error) {
	entries, err := l.Store.Payments(ctx, subjectID, term)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.AmountRequested)
	}
	return total, nil
}
