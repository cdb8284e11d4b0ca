package memory

import (
	"sync/atomic"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
)

// ConcurrencyLimiterOption configures a ConcurrencyLimiter.
type ConcurrencyLimiterOption func(*ConcurrencyLimiter)

// WithConcurrencyObserver registers an observer for acquire, exceed and
// release events.
func WithConcurrencyObserver(o concurrency.Observer) ConcurrencyLimiterOption {
	return func(l *ConcurrencyLimiter) {
		l.observer = o
	}
}

// WithConcurrencyShards sets the number of lock shards.
func WithConcurrencyShards(n int) ConcurrencyLimiterOption {
	return func(l *ConcurrencyLimiter) {
		if n > 0 {
			l.shardCount = n
		}
	}
}

// ConcurrencyLimiter implements concurrency.Limiter in memory.
// A key is stored only while it has at least one request in flight.
type ConcurrencyLimiter struct {
	capacity   int
	active     *shardSet[int]
	shardCount int
	observer   concurrency.Observer
	destroyed  atomic.Bool
}

// NewConcurrencyLimiter creates a limiter allowing capacity in-flight requests
// per key. A capacity of 0 or less rejects every request.
func NewConcurrencyLimiter(capacity int, opts ...ConcurrencyLimiterOption) *ConcurrencyLimiter {
	l := &ConcurrencyLimiter{
		capacity:   capacity,
		shardCount: defaultShards,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.active = newShardSet[int](l.shardCount)
	return l
}

// TryAcquire takes a slot for key without waiting.
func (l *ConcurrencyLimiter) TryAcquire(key string) (bool, error) {
	if l.destroyed.Load() {
		return false, concurrency.ErrDestroyed
	}

	sh := l.active.get(key)
	sh.mu.Lock()
	if l.destroyed.Load() {
		sh.mu.Unlock()
		return false, concurrency.ErrDestroyed
	}
	n := sh.entries[key]
	if n >= l.capacity {
		sh.mu.Unlock()
		if l.observer != nil {
			l.observer.Exceeded(key)
		}
		return false, nil
	}
	n++
	sh.entries[key] = n
	sh.mu.Unlock()

	if l.observer != nil {
		l.observer.Acquired(key, n)
	}
	return true, nil
}

// Release frees a slot for key. Unknown keys are ignored.
func (l *ConcurrencyLimiter) Release(key string) {
	if l.destroyed.Load() {
		return
	}

	sh := l.active.get(key)
	sh.mu.Lock()
	n, ok := sh.entries[key]
	if !ok {
		sh.mu.Unlock()
		return
	}
	n--
	if n <= 0 {
		n = 0
		delete(sh.entries, key)
	} else {
		sh.entries[key] = n
	}
	sh.mu.Unlock()

	if l.observer != nil {
		l.observer.Released(key, n)
	}
}

// Destroy clears all state. Only the first call succeeds.
func (l *ConcurrencyLimiter) Destroy() error {
	if !l.destroyed.CompareAndSwap(false, true) {
		return concurrency.ErrDestroyed
	}
	l.active.clear()
	return nil
}

// Size returns the number of keys with requests in flight.
func (l *ConcurrencyLimiter) Size() int {
	return l.active.len()
}

// Compile-time interface verification.
var _ concurrency.Limiter = (*ConcurrencyLimiter)(nil)
