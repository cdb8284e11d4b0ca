// Package memory provides in-memory admission limiters and event stores.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/ratelimit"
)

const defaultShards = 16

// shard is one independently locked slice of the key space.
type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]V
}

// shardSet spreads keys over a fixed number of shards using xxhash.
type shardSet[V any] struct {
	shards []shard[V]
	mask   uint64
}

func newShardSet[V any](n int) *shardSet[V] {
	size := 1
	for size < n {
		size <<= 1
	}
	s := &shardSet[V]{
		shards: make([]shard[V], size),
		mask:   uint64(size - 1),
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]V)
	}
	return s
}

func (s *shardSet[V]) get(key string) *shard[V] {
	return &s.shards[xxhash.Sum64String(key)&s.mask]
}

func (s *shardSet[V]) len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *shardSet[V]) clear() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		clear(sh.entries)
		sh.mu.Unlock()
	}
}

// TokenBucketOption configures a TokenBucket.
type TokenBucketOption func(*TokenBucket)

// WithObserver registers an observer for acquire, exceed and refill events.
func WithObserver(o ratelimit.Observer) TokenBucketOption {
	return func(tb *TokenBucket) {
		tb.observer = o
	}
}

// WithShards sets the number of lock shards, rounded up to a power of two.
func WithShards(n int) TokenBucketOption {
	return func(tb *TokenBucket) {
		if n > 0 {
			tb.shardCount = n
		}
	}
}

// WithLogger sets the logger used for refill diagnostics.
func WithLogger(logger *slog.Logger) TokenBucketOption {
	return func(tb *TokenBucket) {
		if logger != nil {
			tb.logger = logger
		}
	}
}

// TokenBucket implements ratelimit.TokenBucket in memory.
// Only keys below capacity are stored; a refill that brings a key back to
// capacity forgets it.
type TokenBucket struct {
	config     ratelimit.BucketConfig
	buckets    *shardSet[int]
	shardCount int
	observer   ratelimit.Observer
	logger     *slog.Logger

	lifecycle sync.Mutex
	started   bool
	destroyed atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// NewTokenBucket creates a token-bucket limiter. Refilling begins with Start.
func NewTokenBucket(config ratelimit.BucketConfig, opts ...TokenBucketOption) (*TokenBucket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	tb := &TokenBucket{
		config:     config,
		shardCount: defaultShards,
		logger:     slog.Default(),
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(tb)
	}
	tb.buckets = newShardSet[int](tb.shardCount)
	return tb, nil
}

// Start launches the refill goroutine. Refilling runs until Destroy,
// independent of ctx.
func (tb *TokenBucket) Start(_ context.Context) error {
	tb.lifecycle.Lock()
	defer tb.lifecycle.Unlock()

	if tb.destroyed.Load() {
		return ratelimit.ErrDestroyed
	}
	if tb.started {
		return ratelimit.ErrAlreadyStarted
	}
	tb.started = true

	tb.wg.Add(1)
	go func() {
		defer tb.wg.Done()
		ticker := time.NewTicker(tb.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-tb.stopChan:
				return
			case <-ticker.C:
				tb.refill()
			}
		}
	}()
	return nil
}

// TryAcquire consumes one token for key.
func (tb *TokenBucket) TryAcquire(key string) (bool, error) {
	if tb.destroyed.Load() {
		return false, ratelimit.ErrDestroyed
	}

	sh := tb.buckets.get(key)
	sh.mu.Lock()
	// Destroy may have won the race between the check above and the lock.
	if tb.destroyed.Load() {
		sh.mu.Unlock()
		return false, ratelimit.ErrDestroyed
	}
	tokens, ok := sh.entries[key]
	if !ok {
		tokens = tb.config.Capacity
	}
	if tokens <= 0 {
		sh.mu.Unlock()
		if tb.observer != nil {
			tb.observer.Exceeded(key)
		}
		return false, nil
	}
	tokens--
	sh.entries[key] = tokens
	sh.mu.Unlock()

	if tb.observer != nil {
		tb.observer.Acquired(key, tokens)
	}
	return true, nil
}

type refillEvent struct {
	key    string
	tokens int
}

// refill adds one token to every tracked key and forgets the keys that are
// full again.
func (tb *TokenBucket) refill() {
	if tb.destroyed.Load() {
		return
	}

	var events []refillEvent
	forgotten := 0
	for i := range tb.buckets.shards {
		sh := &tb.buckets.shards[i]
		sh.mu.Lock()
		for key, tokens := range sh.entries {
			tokens++
			if tokens >= tb.config.Capacity {
				delete(sh.entries, key)
				forgotten++
			} else {
				sh.entries[key] = tokens
			}
			if tb.observer != nil {
				events = append(events, refillEvent{key: key, tokens: tokens})
			}
		}
		sh.mu.Unlock()
	}

	for _, ev := range events {
		tb.observer.Refilled(ev.key, ev.tokens)
	}

	if forgotten > 0 {
		tb.logger.Debug("token bucket refill completed",
			"forgotten_keys", forgotten,
			"tracked_keys", tb.buckets.len())
	}
}

// Destroy stops the refill goroutine, waits for it to exit and clears every
// bucket. Only the first call succeeds.
func (tb *TokenBucket) Destroy() error {
	if !tb.destroyed.CompareAndSwap(false, true) {
		return ratelimit.ErrDestroyed
	}

	tb.lifecycle.Lock()
	tb.once.Do(func() {
		close(tb.stopChan)
	})
	tb.lifecycle.Unlock()
	tb.wg.Wait()

	tb.buckets.clear()
	return nil
}

// Size returns the number of tracked keys.
func (tb *TokenBucket) Size() int {
	return tb.buckets.len()
}

// Compile-time interface verification.
var _ ratelimit.TokenBucket = (*TokenBucket)(nil)
