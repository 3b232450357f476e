/*
cache.go - Fingerprint-keyed classification cache

FLOW:
  Classify(text)
    blank text          -> UNKNOWN, nothing consulted
    fresh entry for key -> cached Result (hit)
    otherwise           -> sweep if over threshold, ask collaborator,
                           fall back on failure, store, return

  An entry is fresh while now - createdAt < TTL. Expired entries are only
  removed by the inline sweep or overwritten on the next miss for their key.

CONCURRENCY:
  The map is guarded by a sync.RWMutex. The lookup, the collaborator call and
  the store are separate critical sections: two misses on one key may both
  call the collaborator and the last write wins.
*/
package intent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tuition-engine/metrics"
)

const (
	DefaultTTL            = time.Hour
	DefaultSweepThreshold = 100
	DefaultTimeout        = 10 * time.Second
)

type cacheEntry struct {
	value     Result
	createdAt time.Time
}

// Cache memoizes classifications per Fingerprint.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	collaborator   Collaborator
	ttl            time.Duration
	sweepThreshold int
	timeout        time.Duration
	now            func() time.Time
	logger         *zap.Logger
	metrics        *metrics.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is a read-only snapshot of the cache.
type CacheStats struct {
	Size       int     `json:"size"`
	TTLMinutes float64 `json:"ttlMinutes"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithSweepThreshold(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.sweepThreshold = n
		}
	}
}

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithNow(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache builds a cache in front of collaborator. A nil collaborator is
// allowed: every miss is then answered by FallbackClassify.
func NewCache(collaborator Collaborator, opts ...CacheOption) *Cache {
	c := &Cache{
		entries:        make(map[string]cacheEntry),
		collaborator:   collaborator,
		ttl:            DefaultTTL,
		sweepThreshold: DefaultSweepThreshold,
		timeout:        DefaultTimeout,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the classification of text. It always yields a usable
// Result; collaborator failures degrade to FallbackClassify.
func (c *Cache) Classify(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return unknown(text)
	}

	key := Fingerprint(text)
	if res, ok := c.lookup(key); ok {
		c.hits.Add(1)
		c.metrics.CacheLookup(true)
		return res
	}
	c.misses.Add(1)
	c.metrics.CacheLookup(false)

	c.sweepIfNeeded()

	res := c.consult(ctx, text)

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: res, createdAt: c.now()}
	size := len(c.entries)
	c.mu.Unlock()
	c.metrics.CacheSize(size)

	return res
}

func (c *Cache) lookup(key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.createdAt) >= c.ttl {
		return Result{}, false
	}
	return entry.value, true
}

// sweepIfNeeded drops expired entries once the map outgrows the threshold.
func (c *Cache) sweepIfNeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) <= c.sweepThreshold {
		return
	}
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	c.metrics.CacheSize(len(c.entries))
	c.logger.Debug("intent cache swept",
		zap.Int("removed", removed),
		zap.Int("remaining", len(c.entries)))
}

type collaboratorReply struct {
	text string
	err  error
}

// consult asks the collaborator under the configured timeout. The call runs
// in its own goroutine so a collaborator that ignores ctx still cannot hold
// the caller past the deadline.
func (c *Cache) consult(ctx context.Context, text string) Result {
	if c.collaborator == nil {
		return FallbackClassify(text)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan collaboratorReply, 1)
	go func() {
		reply, err := c.collaborator.ClassifyText(callCtx, BuildPrompt(text))
		done <- collaboratorReply{text: reply, err: err}
	}()

	var reply collaboratorReply
	select {
	case reply = <-done:
	case <-callCtx.Done():
		reply = collaboratorReply{err: callCtx.Err()}
	}

	if reply.err != nil {
		reason := ReasonError
		if errors.Is(reply.err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return c.fallback(text, &CollaboratorError{Reason: reason, Err: reply.err})
	}

	res, err := ParseReply(reply.text, text)
	if err != nil {
		return c.fallback(text, &CollaboratorError{Reason: ReasonUnparsable, Err: err})
	}
	return res
}

func (c *Cache) fallback(text string, cause *CollaboratorError) Result {
	c.metrics.CollaboratorFailure(cause.Reason)
	c.logger.Warn("classification collaborator failed, using rule fallback",
		zap.String("reason", cause.Reason),
		zap.Error(cause.Err))
	return FallbackClassify(text)
}

// Stats returns a snapshot without mutating the cache.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Size:       size,
		TTLMinutes: c.ttl.Minutes(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	c.metrics.CacheSize(0)
}
