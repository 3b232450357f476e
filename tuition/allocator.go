/*
allocator.go - Distributes one payment across a subject's balance records

PURPOSE:
  A subject can owe several tuition records for the same term. A single
  payment is spent across them in creation order until either the payment
  or the outstanding balance runs out.

ALGORITHM:
  remaining := amount
  for each record (ascending RecordID) while remaining > 0:
      delta := min(remaining, record.Balance)
      record.Balance -= delta      // persisted immediately
      remaining -= delta
  append one ledger entry with AmountRequested = amount

PRECONDITIONS (checked before any write, no mutation on failure):
  subject/term blank        -> ErrInvalidRequest
  amount <= 0               -> ErrInvalidAmount
  subject unknown           -> ErrSubjectNotFound
  no records for the term   -> ErrRecordNotFound
  sum of balances <= 0      -> ErrNoOutstandingBalance

OVERPAYMENT:
  If the payment exceeds the outstanding total the excess is absorbed:
  Remaining > 0 in the result, but the ledger entry still records the
  full requested amount. Ledger totals can therefore exceed what was
  collected against balances. This is deliberate and kept as is.

PARTIAL FAILURE:
  Each record update is its own write. If updating a later record fails
  the earlier reductions stay persisted, the error is returned and no
  ledger entry is written.

CONCURRENCY:
  Allocate holds a lock keyed by (subject, term) for its whole duration,
  so two payments against the same outstanding balance never both spend
  it. Different pairs proceed in parallel.
*/
package tuition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/metrics"
)

// AllocationResult describes the outcome of a successful Allocate call.
type AllocationResult struct {
	RecordsTouched int
	Allocated      decimal.Decimal
	Remaining      decimal.Decimal
	Entry          PaymentLedgerEntry
}

// Overpaid reports whether part of the payment was absorbed without a
// record to apply it to.
func (r AllocationResult) Overpaid() bool {
	return r.Remaining.IsPositive()
}

type Allocator struct {
	store   Store
	ledger  *Ledger
	locks   *keyedMutex
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type AllocatorOption func(*Allocator)

func WithAllocatorLogger(l *zap.Logger) AllocatorOption {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithAllocatorMetrics(m *metrics.Metrics) AllocatorOption {
	return func(a *Allocator) { a.metrics = m }
}

// WithClock overrides the time source used for ledger timestamps.
func WithClock(now func() time.Time) AllocatorOption {
	return func(a *Allocator) { a.ledger.now = now }
}

func NewAllocator(store Store, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		store:  store,
		ledger: NewLedger(store),
		locks:  newKeyedMutex(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ledger exposes the payment ledger the allocator writes to.
func (a *Allocator) Ledger() *Ledger {
	return a.ledger
}

// Allocate applies amount to the outstanding balance records of
// subjectID/term.
func (a *Allocator) Allocate(ctx context.Context, subjectID SubjectID, term Term, amount decimal.Decimal) (AllocationResult, error) {
	subjectID = SubjectID(strings.TrimSpace(string(subjectID)))
	term = NormalizeTerm(string(term))

	if subjectID == "" || term == "" {
		return AllocationResult{}, &AllocationError{SubjectID: subjectID, Term: term, Err: ErrInvalidRequest}
	}
	if !amount.IsPositive() {
		return AllocationResult{}, &AllocationError{SubjectID: subjectID, Term: term, Err: ErrInvalidAmount}
	}

	unlock := a.locks.Lock(string(subjectID) + "\x00" + string(term))
	defer unlock()

	exists, err := a.store.SubjectExists(ctx, subjectID)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return AllocationResult{}, &AllocationError{SubjectID: subjectID, Term: term, Err: ErrSubjectNotFound}
	}

	records, err := a.store.BalanceRecords(ctx, subjectID, term)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("load balance records: %w", err)
	}
	if len(records) == 0 {
		return AllocationResult{}, &AllocationError{SubjectID: subjectID, Term: term, Err: ErrRecordNotFound}
	}
	if !SumBalances(records).IsPositive() {
		return AllocationResult{}, &AllocationError{SubjectID: subjectID, Term: term, Err: ErrNoOutstandingBalance}
	}

	remaining := amount
	touched := 0
	for _, rec := range records {
		if !remaining.IsPositive() {
			break
		}
		if !rec.IsOutstanding() {
			continue
		}
		delta := decimal.Min(remaining, rec.Balance)
		newBalance := rec.Balance.Sub(delta)
		if err := a.store.UpdateBalance(ctx, rec.ID, newBalance); err != nil {
			a.logger.Error("balance update failed mid-allocation",
				zap.String("subject_id", string(subjectID)),
				zap.String("term", string(term)),
				zap.Int64("record_id", int64(rec.ID)),
				zap.Int("records_already_updated", touched),
				zap.Error(err))
			return AllocationResult{}, fmt.Errorf("update record %d: %w", rec.ID, err)
		}
		remaining = remaining.Sub(delta)
		touched++
	}

	entry, err := a.ledger.Record(ctx, subjectID, term, amount)
	if err != nil {
		return AllocationResult{}, err
	}

	result := AllocationResult{
		RecordsTouched: touched,
		Allocated:      amount.Sub(remaining),
		Remaining:      remaining,
		Entry:          entry,
	}
	a.metrics.PaymentAllocated(result.Overpaid())
	a.logger.Info("payment allocated",
		zap.String("subject_id", string(subjectID)),
		zap.String("term", string(term)),
		zap.String("requested", amount.String()),
		zap.String("allocated", result.Allocated.String()),
		zap.String("remaining", remaining.String()),
		zap.Int("records_touched", touched))
	return result, nil
}
