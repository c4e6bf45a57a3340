package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults for bucket eviction.
const (
	DefaultIdleTTL       = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// bucket is a single token bucket for one caller.
type bucket struct {
	tokens float64
	seen   time.Time
}

// take refills b for the time elapsed since it was last seen, capped at
// burst, and spends one token if one is available.
func (b *bucket) take(now time.Time, rate, burst float64) bool {
	b.tokens = min(burst, b.tokens+now.Sub(b.seen).Seconds()*rate)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// WithIdleTTL sets how long a caller's bucket survives without requests.
func WithIdleTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryLimiter) { m.idleTTL = ttl }
}

// WithSweepInterval sets how often idle buckets are evicted. Zero disables
// the background sweep.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryLimiter) { m.sweepEvery = d }
}

// MemoryLimiter implements Limiter with one in-memory token bucket per key.
// rate is the refill in tokens per second and burst the bucket capacity.
type MemoryLimiter struct {
	rate       float64
	burst      float64
	now        func() time.Time
	idleTTL    time.Duration
	sweepEvery time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter allowing rate requests per
// second per key with bursts of up to burst. Call Close to stop the sweeper.
func NewMemoryLimiter(rate float64, burst int, opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:       rate,
		burst:      float64(burst),
		now:        time.Now,
		idleTTL:    DefaultIdleTTL,
		sweepEvery: DefaultSweepInterval,
		buckets:    make(map[string]*bucket),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sweepEvery > 0 {
		go m.sweepLoop()
	}
	return m
}

// Allow spends one token from key's bucket. New keys start with a full bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, seen: now}
		m.buckets[key] = b
	}
	return b.take(now, m.rate, m.burst), nil
}

// Len reports how many callers currently hold a bucket.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Close stops the sweeper. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops buckets idle for longer than the TTL.
func (m *MemoryLimiter) sweep() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.seen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
