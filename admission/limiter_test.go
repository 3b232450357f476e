package admission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/admission"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var istanbul = time.FixedZone("TRT", 3*60*60)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newRedisHistory(t *testing.T) (*admission.RedisHistory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return admission.NewRedisHistory(rdb), mr
}

// historyStores runs a test against every HistoryStore implementation.
func historyStores(t *testing.T, run func(t *testing.T, h admission.HistoryStore)) {
	t.Run("memory", func(t *testing.T) {
		run(t, admission.NewMemoryHistory())
	})
	t.Run("redis", func(t *testing.T) {
		h, _ := newRedisHistory(t)
		run(t, h)
	})
}

// =============================================================================
// QUOTA
// =============================================================================

func TestDailyQuota_FourthCallDenied_ResetsAtMidnight(t *testing.T) {
	// GIVEN: A quota of 3 in a fixed time zone
	// WHEN: A subject calls 4 times on one day, then again after midnight
	// THEN: Calls 1-3 pass, call 4 fails, the next day passes again
	historyStores(t, func(t *testing.T, h admission.HistoryStore) {
		clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, istanbul)}
		q := admission.NewDailyQuota(h, admission.WithClock(clk.Now), admission.WithLocation(istanbul))
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			assert.True(t, q.Allow(ctx, "2023001"), "call %d", i+1)
			clk.Set(clk.Now().Add(time.Hour))
		}
		assert.False(t, q.Allow(ctx, "2023001"))

		clk.Set(time.Date(2025, time.March, 10, 23, 59, 59, 0, istanbul))
		assert.False(t, q.Allow(ctx, "2023001"), "still the same day")

		clk.Set(time.Date(2025, time.March, 11, 0, 0, 0, 0, istanbul))
		assert.True(t, q.Allow(ctx, "2023001"), "new day")
	})
}

func TestDailyQuota_SubjectsAreIndependent(t *testing.T) {
	historyStores(t, func(t *testing.T, h admission.HistoryStore) {
		q := admission.NewDailyQuota(h, admission.WithQuota(1))
		ctx := context.Background()

		assert.True(t, q.Allow(ctx, "2023001"))
		assert.False(t, q.Allow(ctx, "2023001"))
		assert.True(t, q.Allow(ctx, "2023002"))
	})
}

func TestDailyQuota_BlankSubjectDenied(t *testing.T) {
	h := admission.NewMemoryHistory()
	q := admission.NewDailyQuota(h)

	assert.False(t, q.Allow(context.Background(), ""))
	assert.False(t, q.Allow(context.Background(), "   "))
	assert.Equal(t, 0, h.Len())
}

func TestDailyQuota_UsesLocalMidnightOfConfiguredZone(t *testing.T) {
	// 22:30 UTC on the 10th is already 01:30 on the 11th in Istanbul.
	h := admission.NewMemoryHistory()
	clk := &clock{now: time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC)}
	q := admission.NewDailyQuota(h,
		admission.WithQuota(1),
		admission.WithClock(clk.Now),
		admission.WithLocation(istanbul))
	ctx := context.Background()

	assert.True(t, q.Allow(ctx, "2023001"))
	clk.Set(time.Date(2025, time.March, 10, 22, 30, 0, 0, time.UTC))
	assert.True(t, q.Allow(ctx, "2023001"))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestDailyQuota_ConcurrentSameSubject_ExactlyQuota(t *testing.T) {
	historyStores(t, func(t *testing.T, h admission.HistoryStore) {
		q := admission.NewDailyQuota(h)
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			allowed atomic.Int64
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if q.Allow(ctx, "2023001") {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(admission.DefaultDailyQuota), allowed.Load())
	})
}

// =============================================================================
// FAILURE
// =============================================================================

type brokenHistory struct{}

func (brokenHistory) Admit(context.Context, string, time.Time, time.Time, int) (bool, error) {
	return false, errors.New("connection reset")
}

func TestDailyQuota_HistoryFailure_Allows(t *testing.T) {
	q := admission.NewDailyQuota(brokenHistory{})
	assert.True(t, q.Allow(context.Background(), "2023001"))
}

func TestRedisHistory_KeyExpires(t *testing.T) {
	h, mr := newRedisHistory(t)
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	ok, err := h.Admit(context.Background(), "2023001", now, admission.StartOfDay(now), 3)
	require.NoError(t, err)
	assert.True(t, ok)

	require.True(t, mr.Exists("admission:2023001"))
	assert.Equal(t, 48*time.Hour, mr.TTL("admission:2023001"))

	mr.FastForward(49 * time.Hour)
	assert.False(t, mr.Exists("admission:2023001"))
}

func TestRedisHistory_ServerDown_ReturnsError(t *testing.T) {
	h, mr := newRedisHistory(t)
	mr.Close()

	now := time.Now()
	_, err := h.Admit(context.Background(), "2023001", now, admission.StartOfDay(now), 3)
	assert.Error(t, err)
}
