/*
Package admission caps how many requests a subject may issue per calendar day.

PURPOSE:
  The public tuition lookup is quota-limited per student number. Each subject
  gets DefaultDailyQuota admissions per local calendar day; the window resets
  at local midnight rather than rolling over 24 hours.

KEY CONCEPTS:
  - Limiter: The allow/deny contract callers depend on
  - DailyQuota: Fixed-window Limiter over a HistoryStore
  - HistoryStore: Per-subject timestamp history (memory.go, redis.go)

ALGORITHM (per subject, atomic):
  1. dayStart = local midnight of now
  2. drop timestamps before dayStart
  3. if fewer than quota remain, append now and allow; otherwise deny

  Denied requests are not recorded, so they do not push the reset back.
*/
package admission

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tuition-engine/metrics"
)

const DefaultDailyQuota = 3

// Limiter answers whether a subject may proceed. It never fails; a false
// return is the rate-limit signal.
type Limiter interface {
	Allow(ctx context.Context, subjectID string) bool
}

// HistoryStore owns per-subject request history. Admit must run the
// purge, count and append steps as one unit per subject.
type HistoryStore interface {
	Admit(ctx context.Context, subjectID string, now, dayStart time.Time, quota int) (bool, error)
}

// DailyQuota is a fixed-window Limiter.
type DailyQuota struct {
	history HistoryStore
	quota   int
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ Limiter = (*DailyQuota)(nil)

type Option func(*DailyQuota)

func WithQuota(n int) Option {
	return func(q *DailyQuota) {
		if n > 0 {
			q.quota = n
		}
	}
}

// WithLocation sets the time zone whose midnight resets the window.
func WithLocation(loc *time.Location) Option {
	return func(q *DailyQuota) {
		if loc != nil {
			q.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *DailyQuota) { q.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(q *DailyQuota) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *DailyQuota) { q.metrics = m }
}

func NewDailyQuota(history HistoryStore, opts ...Option) *DailyQuota {
	q := &DailyQuota{
		history: history,
		quota:   DefaultDailyQuota,
		loc:     time.Local,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Allow admits the request if the subject has used fewer than the quota
// today. A blank subject is always denied. A failing history store admits
// the request.
func (q *DailyQuota) Allow(ctx context.Context, subjectID string) bool {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		q.metrics.AdmissionDecision(false)
		return false
	}

	now := q.now().In(q.loc)
	allowed, err := q.history.Admit(ctx, subjectID, now, StartOfDay(now), q.quota)
	if err != nil {
		q.logger.Error("admission history unavailable, allowing request",
			zap.String("subject", subjectID),
			zap.Error(err))
		allowed = true
	}
	q.metrics.AdmissionDecision(allowed)
	if !allowed {
		q.logger.Info("daily quota exhausted",
			zap.String("subject", subjectID),
			zap.Int("quota", q.quota))
	}
	return allowed
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
