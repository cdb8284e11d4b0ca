package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/rpcguard/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/interceptor"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// Recommended stack defaults.
const (
	DefaultRateLimitCapacity       = 10
	DefaultRateLimitInterval       = 100 * time.Millisecond
	DefaultConcurrentLimitCapacity = 16
)

// LoggingConfig configures the logging interceptor.
type LoggingConfig struct {
	LogIP bool
}

// RateLimitConfig configures the rate limit interceptor.
type RateLimitConfig struct {
	Capacity int
	Interval time.Duration
	// Strategy selects a built-in key extractor. Ignored when Key is set.
	Strategy rpc.KeyStrategy
	Key      rpc.KeyFunc
	Shards   int
}

// ConcurrentLimitConfig configures the concurrent limit interceptor.
type ConcurrentLimitConfig struct {
	Capacity int
	Strategy rpc.KeyStrategy
	Key      rpc.KeyFunc
	Shards   int
}

// StackConfig describes the interceptor stack. Nil sections are left out.
type StackConfig struct {
	Logging         *LoggingConfig
	RateLimit       *RateLimitConfig
	ConcurrentLimit *ConcurrentLimitConfig

	// TracerProvider enables the tracing interceptor when set.
	TracerProvider trace.TracerProvider

	// Stats enables the stats interceptor when set.
	Stats interceptor.StatsRecorder

	RateObservers        []ratelimit.Observer
	ConcurrencyObservers []concurrency.Observer
}

// DefaultStackConfig returns the recommended stack: logging, then a rate
// limit of 10 tokens refilled every 100ms per address, then 16 concurrent
// requests per address.
func DefaultStackConfig() StackConfig {
	return StackConfig{
		Logging: &LoggingConfig{},
		RateLimit: &RateLimitConfig{
			Capacity: DefaultRateLimitCapacity,
			Interval: DefaultRateLimitInterval,
			Strategy: rpc.KeyByAddress,
		},
		ConcurrentLimit: &ConcurrentLimitConfig{
			Capacity: DefaultConcurrentLimitCapacity,
			Strategy: rpc.KeyByAddress,
		},
	}
}

// StackService owns an interceptor chain and the limiters inside it.
//
// Chain order, outermost first: tracing, stats, logging, rate limit,
// concurrent limit.
type StackService struct {
	chain           *rpc.Chain
	rateLimit       *interceptor.RateLimit
	concurrentLimit *interceptor.ConcurrentLimit
	logger          *slog.Logger
}

// NewStackService builds the chain described by cfg.
func NewStackService(cfg StackConfig, logger *slog.Logger) (*StackService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StackService{logger: logger}

	var interceptors []rpc.Interceptor
	if cfg.TracerProvider != nil {
		interceptors = append(interceptors, interceptor.NewTracing(cfg.TracerProvider))
	}
	if cfg.Stats != nil {
		interceptors = append(interceptors, interceptor.NewStats(cfg.Stats))
	}
	if cfg.Logging != nil {
		interceptors = append(interceptors, interceptor.NewLogging(logger, interceptor.WithLogIP(cfg.Logging.LogIP)))
	}

	if rc := cfg.RateLimit; rc != nil {
		key, err := resolveKey(rc.Key, rc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		opts := []memory.TokenBucketOption{memory.WithLogger(logger)}
		if obs := fanOutRate(cfg.RateObservers); obs != nil {
			opts = append(opts, memory.WithObserver(obs))
		}
		if rc.Shards > 0 {
			opts = append(opts, memory.WithShards(rc.Shards))
		}
		tb, err := memory.NewTokenBucket(ratelimit.BucketConfig{Capacity: rc.Capacity, Interval: rc.Interval}, opts...)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		s.rateLimit = interceptor.NewRateLimit(tb, key, logger)
		interceptors = append(interceptors, s.rateLimit)
	}

	if cc := cfg.ConcurrentLimit; cc != nil {
		key, err := resolveKey(cc.Key, cc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("concurrent limit: %w", err)
		}
		var opts []memory.ConcurrencyLimiterOption
		if obs := fanOutConcurrency(cfg.ConcurrencyObservers); obs != nil {
			opts = append(opts, memory.WithConcurrencyObserver(obs))
		}
		if cc.Shards > 0 {
			opts = append(opts, memory.WithConcurrencyShards(cc.Shards))
		}
		s.concurrentLimit = interceptor.NewConcurrentLimit(memory.NewConcurrencyLimiter(cc.Capacity, opts...), key, logger)
		interceptors = append(interceptors, s.concurrentLimit)
	}

	s.chain = rpc.Compose(interceptors...)
	return s, nil
}

func resolveKey(custom rpc.KeyFunc, strategy rpc.KeyStrategy) (rpc.KeyFunc, error) {
	if custom != nil {
		return custom, nil
	}
	if strategy == "" {
		strategy = rpc.KeyByAddress
	}
	key, ok := rpc.KeyFuncFor(strategy)
	if !ok {
		return nil, fmt.Errorf("unknown key strategy %q", strategy)
	}
	return key, nil
}

// Chain returns the composed chain.
func (s *StackService) Chain() *rpc.Chain {
	return s.chain
}

// Open opens every interceptor; the rate limiter starts refilling.
func (s *StackService) Open(ctx context.Context) error {
	if err := s.chain.Open(ctx); err != nil {
		return fmt.Errorf("open interceptor stack: %w", err)
	}
	s.logger.Debug("interceptor stack opened", "interceptors", s.chain.Len())
	return nil
}

// Close destroys the limiters. A second call returns the destroyed errors.
func (s *StackService) Close() error {
	return s.chain.Close()
}

// Handle runs handler for req through the chain.
func (s *StackService) Handle(ctx context.Context, req *rpc.Request, handler rpc.Handler) (any, error) {
	return s.chain.Handle(ctx, req, handler)
}

// TrackedRateLimitKeys returns the number of under-full rate limit buckets,
// or 0 when the stack has no rate limiter.
func (s *StackService) TrackedRateLimitKeys() int {
	if s.rateLimit == nil {
		return 0
	}
	return s.rateLimit.Size()
}

// ActiveConcurrentKeys returns the number of keys with requests in flight,
// or 0 when the stack has no concurrent limiter.
func (s *StackService) ActiveConcurrentKeys() int {
	if s.concurrentLimit == nil {
		return 0
	}
	return s.concurrentLimit.Size()
}

type rateFanOut []ratelimit.Observer

func fanOutRate(observers []ratelimit.Observer) ratelimit.Observer {
	var out rateFanOut
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f rateFanOut) Acquired(key string, remaining int) {
	for _, o := range f {
		o.Acquired(key, remaining)
	}
}

func (f rateFanOut) Exceeded(key string) {
	for _, o := range f {
		o.Exceeded(key)
	}
}

func (f rateFanOut) Refilled(key string, tokens int) {
	for _, o := range f {
		o.Refilled(key, tokens)
	}
}

type concurrencyFanOut []concurrency.Observer

func fanOutConcurrency(observers []concurrency.Observer) concurrency.Observer {
	var out concurrencyFanOut
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f concurrencyFanOut) Acquired(key string, active int) {
	for _, o := range f {
		o.Acquired(key, active)
	}
}

func (f concurrencyFanOut) Exceeded(key string) {
	for _, o := range f {
		o.Exceeded(key)
	}
}

func (f concurrencyFanOut) Released(key string, active int) {
	for _, o := range f {
		o.Released(key, active)
	}
}
