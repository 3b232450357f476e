package intent_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/intent"
	"github.com/warp/tuition-engine/metrics"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingCollaborator replies with a fixed payload and counts calls.
type countingCollaborator struct {
	calls atomic.Int64
	reply string
	err   error
}

func (c *countingCollaborator) ClassifyText(_ context.Context, _ string) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}

const (
	failuresMetric = "tuition_intent_collaborator_failures_total"
	entriesMetric  = "tuition_intent_cache_entries"
)

func expectFailures(reason string) string {
	return fmt.Sprintf(`
# HELP %[1]s Classification collaborator failures that fell back to rule extraction.
# TYPE %[1]s counter
%[1]s{reason=%[2]q} 1
`, failuresMetric, reason)
}

func expectEntries(n int) string {
	return fmt.Sprintf(`
# HELP %[1]s Entries currently held by the intent cache.
# TYPE %[1]s gauge
%[1]s %[2]d
`, entriesMetric, n)
}

const balanceReply = `{"intent":"QUERY_TUITION","studentNo":"2023001","term":null,"amount":null}`

// =============================================================================
// HITS AND EXPIRY
// =============================================================================

func TestCache_SecondCallWithinTTL_IsHit(t *testing.T) {
	// GIVEN: A cache in front of a counting collaborator
	// WHEN: The same fingerprint is classified twice within the TTL
	// THEN: The collaborator is called once and both results are identical
	collab := &countingCollaborator{reply: balanceReply}
	clock := newFakeClock()
	cache := intent.NewCache(collab, intent.WithNow(clock.Now))
	ctx := context.Background()

	first := cache.Classify(ctx, "Check balance for 2023001")
	clock.Advance(59 * time.Minute)
	second := cache.Classify(ctx, "balance check 2023001 please")

	assert.Equal(t, int64(1), collab.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, intent.KindQueryBalance, first.Intent)
	assert.Equal(t, "2023001", first.SubjectID)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_AfterTTL_CallsCollaboratorAgain(t *testing.T) {
	collab := &countingCollaborator{reply: balanceReply}
	clock := newFakeClock()
	cache := intent.NewCache(collab, intent.WithNow(clock.Now))
	ctx := context.Background()

	cache.Classify(ctx, "balance 2023001")
	clock.Advance(time.Hour)
	cache.Classify(ctx, "balance 2023001")

	assert.Equal(t, int64(2), collab.calls.Load())
	assert.Equal(t, 1, cache.Stats().Size, "expired entry is overwritten")
}

func TestCache_BlankInput_SkipsEverything(t *testing.T) {
	collab := &countingCollaborator{reply: balanceReply}
	cache := intent.NewCache(collab)

	res := cache.Classify(context.Background(), " \t ")

	assert.Equal(t, intent.KindUnknown, res.Intent)
	assert.Equal(t, " \t ", res.RawText)
	assert.Zero(t, collab.calls.Load())
	assert.Equal(t, intent.CacheStats{TTLMinutes: 60}, cache.Stats())
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestCache_CollaboratorFailures_UseFallback(t *testing.T) {
	const text = "I want to pay 500 for student 2023001 for 2025-SUMMER"

	blocking := intent.CollaboratorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ignoresContext := intent.CollaboratorFunc(func(context.Context, string) (string, error) {
		time.Sleep(500 * time.Millisecond)
		return balanceReply, nil
	})

	tests := []struct {
		name   string
		collab intent.Collaborator
		reason string
	}{
		{"error", &countingCollaborator{err: errors.New("connection refused")}, intent.ReasonError},
		{"garbage", &countingCollaborator{reply: "I am not JSON"}, intent.ReasonUnparsable},
		{"timeout", blocking, intent.ReasonTimeout},
		{"ignores deadline", ignoresContext, intent.ReasonTimeout},
		{"no collaborator", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			cache := intent.NewCache(tt.collab,
				intent.WithTimeout(20*time.Millisecond),
				intent.WithMetrics(m))

			res := cache.Classify(context.Background(), text)

			assert.Equal(t, intent.KindPay, res.Intent)
			assert.Equal(t, "2023001", res.SubjectID)
			assert.Equal(t, "2025-SUMMER", res.Term)
			require.True(t, res.HasAmount())
			assert.Equal(t, "500", res.Amount.Decimal.String())
			assert.Equal(t, 1, cache.Stats().Size, "fallback results are cached too")

			if tt.reason == "" {
				n, err := testutil.GatherAndCount(m.Registry(), failuresMetric)
				require.NoError(t, err)
				assert.Zero(t, n)
				return
			}
			assert.NoError(t, testutil.GatherAndCompare(m.Registry(),
				strings.NewReader(expectFailures(tt.reason)), failuresMetric))
		})
	}
}

// =============================================================================
// HOUSEKEEPING
// =============================================================================

func TestCache_SweepsExpiredEntriesOverThreshold(t *testing.T) {
	clock := newFakeClock()
	cache := intent.NewCache(nil, intent.WithNow(clock.Now), intent.WithSweepThreshold(3))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cache.Classify(ctx, fmt.Sprintf("balance %d", 1000001+i))
	}
	require.Equal(t, 4, cache.Stats().Size, "no sweep while nothing has expired")

	clock.Advance(2 * time.Hour)
	cache.Classify(ctx, "balance 2000001")

	assert.Equal(t, 1, cache.Stats().Size, "expired entries swept on the miss path")
}

func TestCache_SweepUpdatesEntriesGauge(t *testing.T) {
	clock := newFakeClock()
	m := metrics.New()

	var observe atomic.Bool
	var gaugeErr error
	collab := intent.CollaboratorFunc(func(context.Context, string) (string, error) {
		if observe.Load() {
			gaugeErr = testutil.GatherAndCompare(m.Registry(),
				strings.NewReader(expectEntries(0)), entriesMetric)
		}
		return balanceReply, nil
	})
	cache := intent.NewCache(collab,
		intent.WithNow(clock.Now),
		intent.WithSweepThreshold(3),
		intent.WithMetrics(m))
	ctx := context.Background()

	// GIVEN: four entries, all expired
	for i := 0; i < 4; i++ {
		cache.Classify(ctx, fmt.Sprintf("balance %d", 1000001+i))
	}
	clock.Advance(2 * time.Hour)

	// WHEN: a miss triggers the sweep
	observe.Store(true)
	cache.Classify(ctx, "balance 2000001")

	// THEN: the gauge dropped before the collaborator was consulted
	assert.NoError(t, gaugeErr)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(expectEntries(1)), entriesMetric))
}

func TestCache_StatsAndClear(t *testing.T) {
	cache := intent.NewCache(nil, intent.WithTTL(30*time.Minute))
	ctx := context.Background()

	cache.Classify(ctx, "balance 2023001")
	cache.Classify(ctx, "unpaid 2024-FALL")

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, float64(30), stats.TTLMinutes)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestCache_ConcurrentClassify(t *testing.T) {
	collab := &countingCollaborator{reply: balanceReply}
	cache := intent.NewCache(collab, intent.WithSweepThreshold(5))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := cache.Classify(ctx, fmt.Sprintf("balance %d", 1000000+i%10))
			assert.Equal(t, intent.KindQueryBalance, res.Intent)
			if i%7 == 0 {
				cache.Stats()
			}
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.Equal(t, 10, stats.Size)
	assert.Equal(t, int64(50), stats.Hits+stats.Misses)
	assert.GreaterOrEqual(t, collab.calls.Load(), int64(10))
}
