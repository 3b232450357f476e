package tuition_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/tuition"
	"github.com/warp/tuition-engine/tuition/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	student = tuition.SubjectID("2023001")
	summer  = tuition.Term("2025-SUMMER")
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newTestAllocator(t *testing.T, balances ...int64) (*tuition.Allocator, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveSubject(ctx, tuition.Subject{ID: student, Name: "Ali Veli"}))
	for _, b := range balances {
		_, err := mem.AddBalanceRecord(ctx, tuition.BalanceRecord{
			SubjectID:   student,
			Term:        summer,
			TotalAmount: dec(b),
			Balance:     dec(b),
		})
		require.NoError(t, err)
	}
	return tuition.NewAllocator(mem), mem
}

func balancesOf(t *testing.T, mem *store.Memory) []string {
	t.Helper()
	records, err := mem.BalanceRecords(context.Background(), student, summer)
	require.NoError(t, err)
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Balance.String()
	}
	return out
}

// =============================================================================
// ALLOCATION
// =============================================================================

func TestAllocate_SingleRecord_ExactPayment(t *testing.T) {
	// GIVEN: One record with balance 500
	// WHEN: Paying 500
	// THEN: Balance is 0 and one ledger entry of 500 exists
	alloc, mem := newTestAllocator(t, 500)
	ctx := context.Background()

	res, err := alloc.Allocate(ctx, student, summer, dec(500))
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsTouched)
	assert.True(t, res.Remaining.IsZero())
	assert.False(t, res.Overpaid())
	assert.Equal(t, []string{"0"}, balancesOf(t, mem))

	entries, err := mem.Payments(ctx, student, summer)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].AmountRequested.Equal(dec(500)))
	assert.Equal(t, res.Entry.ID, entries[0].ID)

	// AND: A further payment finds nothing outstanding
	_, err = alloc.Allocate(ctx, student, summer, dec(100))
	assert.ErrorIs(t, err, tuition.ErrNoOutstandingBalance)
	assert.True(t, tuition.IsConflict(err))

	entries, err = mem.Payments(ctx, student, summer)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed payment must not be ledgered")
}

func TestAllocate_TwoRecords_CreationOrder(t *testing.T) {
	alloc, mem := newTestAllocator(t, 300, 700)

	res, err := alloc.Allocate(context.Background(), student, summer, dec(1000))
	require.NoError(t, err)

	assert.Equal(t, 2, res.RecordsTouched)
	assert.True(t, res.Remaining.IsZero())
	assert.True(t, res.Allocated.Equal(dec(1000)))
	assert.Equal(t, []string{"0", "0"}, balancesOf(t, mem))
}

func TestAllocate_PartialPayment_SpendsOldestFirst(t *testing.T) {
	alloc, mem := newTestAllocator(t, 300, 700)

	res, err := alloc.Allocate(context.Background(), student, summer, dec(400))
	require.NoError(t, err)

	assert.Equal(t, 2, res.RecordsTouched)
	assert.Equal(t, []string{"0", "600"}, balancesOf(t, mem))
}

func TestAllocate_SkipsSettledRecords(t *testing.T) {
	alloc, mem := newTestAllocator(t, 300, 700)
	ctx := context.Background()

	_, err := alloc.Allocate(ctx, student, summer, dec(300))
	require.NoError(t, err)

	res, err := alloc.Allocate(ctx, student, summer, dec(50))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsTouched, "settled first record is not touched")
	assert.Equal(t, []string{"0", "650"}, balancesOf(t, mem))
}

func TestAllocate_Overpayment_LedgersRequestedAmount(t *testing.T) {
	// GIVEN: Records of 300 and 700
	// WHEN: Paying 1200
	// THEN: Both zeroed, 200 remains, ledger still says 1200.
	// The ledger total exceeding collected balance is the documented behavior.
	alloc, mem := newTestAllocator(t, 300, 700)
	ctx := context.Background()

	res, err := alloc.Allocate(ctx, student, summer, dec(1200))
	require.NoError(t, err)

	assert.True(t, res.Remaining.Equal(dec(200)))
	assert.True(t, res.Allocated.Equal(dec(1000)))
	assert.True(t, res.Overpaid())
	assert.Equal(t, []string{"0", "0"}, balancesOf(t, mem))

	total, err := alloc.Ledger().TotalRequested(ctx, student, summer)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec(1200)), "ledger records the full request, got %s", total)
}

func TestAllocate_DecimalPrecision(t *testing.T) {
	alloc, mem := newTestAllocator(t, 100)

	_, err := alloc.Allocate(context.Background(), student, summer, decimal.RequireFromString("33.33"))
	require.NoError(t, err)
	assert.Equal(t, []string{"66.67"}, balancesOf(t, mem))
}

func TestAllocate_TermIsNormalized(t *testing.T) {
	alloc, mem := newTestAllocator(t, 500)

	_, err := alloc.Allocate(context.Background(), student, " 2025-summer", dec(100))
	require.NoError(t, err)
	assert.Equal(t, []string{"400"}, balancesOf(t, mem))
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestAllocate_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		subject tuition.SubjectID
		term    tuition.Term
		amount  decimal.Decimal
		want    error
		isCat   func(error) bool
	}{
		{"zero amount", student, summer, decimal.Zero, tuition.ErrInvalidAmount, tuition.IsClientError},
		{"negative amount", student, summer, dec(-5), tuition.ErrInvalidAmount, tuition.IsClientError},
		{"blank subject", "  ", summer, dec(5), tuition.ErrInvalidRequest, tuition.IsClientError},
		{"blank term", student, "", dec(5), tuition.ErrInvalidRequest, tuition.IsClientError},
		{"unknown subject", "9999999", summer, dec(5), tuition.ErrSubjectNotFound, tuition.IsNotFound},
		{"unknown term", student, "2030-FALL", dec(5), tuition.ErrRecordNotFound, tuition.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc, mem := newTestAllocator(t, 500)

			_, err := alloc.Allocate(context.Background(), tt.subject, tt.term, tt.amount)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, tt.isCat(err))

			var allocErr *tuition.AllocationError
			assert.ErrorAs(t, err, &allocErr)

			assert.Equal(t, []string{"500"}, balancesOf(t, mem), "no mutation on failure")
		})
	}
}

// =============================================================================
// PARTIAL FAILURE
// =============================================================================

// failingStore fails UpdateBalance for one record.
type failingStore struct {
	*store.Memory
	failOn tuition.RecordID
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) UpdateBalance(ctx context.Context, id tuition.RecordID, b decimal.Decimal) error {
	if id == f.failOn {
		return errDiskFull
	}
	return f.Memory.UpdateBalance(ctx, id, b)
}

func TestAllocate_LaterUpdateFails_EarlierUpdateStays(t *testing.T) {
	_, mem := newTestAllocator(t, 300, 700)
	fs := &failingStore{Memory: mem, failOn: 2}
	alloc := tuition.NewAllocator(fs)
	ctx := context.Background()

	_, err := alloc.Allocate(ctx, student, summer, dec(1000))
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, []string{"0", "700"}, balancesOf(t, mem))
	entries, err := mem.Payments(ctx, student, summer)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestAllocate_ConcurrentPayments_NeverDoubleSpend(t *testing.T) {
	// GIVEN: 500 outstanding
	// WHEN: 20 concurrent payments of 100
	// THEN: Exactly 5 succeed, the rest see no outstanding balance
	alloc, mem := newTestAllocator(t, 200, 300)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := alloc.Allocate(ctx, student, summer, dec(100))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, tuition.ErrNoOutstandingBalance):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, conflicts)
	assert.Equal(t, []string{"0", "0"}, balancesOf(t, mem))
}

func TestAllocate_LedgerUsesClock(t *testing.T) {
	_, mem := newTestAllocator(t, 500)
	at := time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)
	alloc := tuition.NewAllocator(mem, tuition.WithClock(func() time.Time { return at }))

	res, err := alloc.Allocate(context.Background(), student, summer, dec(100))
	require.NoError(t, err)
	assert.Equal(t, at, res.Entry.RecordedAt)
	assert.NotEmpty(t, res.Entry.ID)
}
