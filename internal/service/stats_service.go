// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/interceptor"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/ratelimit"
)

// StatsService tracks admission and request statistics.
// All counter operations are safe for concurrent access from multiple goroutines.
type StatsService struct {
	rateAcquired       atomic.Int64
	rateExceeded       atomic.Int64
	rateRefilled       atomic.Int64
	concurrentAcquired atomic.Int64
	concurrentExceeded atomic.Int64
	concurrentReleased atomic.Int64

	// Per-method counters (mutex-protected maps).
	mu       sync.Mutex
	requests map[string]int64
	errors   map[string]int64
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{
		requests: make(map[string]int64),
		errors:   make(map[string]int64),
	}
}

// IncRequests increments the request counter for method.
func (s *StatsService) IncRequests(method string) {
	s.mu.Lock()
	s.requests[method]++
	s.mu.Unlock()
}

// IncErrors increments the error counter for method.
func (s *StatsService) IncErrors(method string) {
	s.mu.Lock()
	s.errors[method]++
	s.mu.Unlock()
}

// RateObserver returns an observer that counts token-bucket events.
func (s *StatsService) RateObserver() ratelimit.Observer {
	return ratelimit.ObserverFuncs{
		OnAcquired: func(string, int) { s.rateAcquired.Add(1) },
		OnExceeded: func(string) { s.rateExceeded.Add(1) },
		OnRefilled: func(string, int) { s.rateRefilled.Add(1) },
	}
}

// ConcurrencyObserver returns an observer that counts concurrency-limiter events.
func (s *StatsService) ConcurrencyObserver() concurrency.Observer {
	return concurrencyStats{s: s}
}

type concurrencyStats struct {
	s *StatsService
}

func (c concurrencyStats) Acquired(string, int) { c.s.concurrentAcquired.Add(1) }
func (c concurrencyStats) Exceeded(string)      { c.s.concurrentExceeded.Add(1) }
func (c concurrencyStats) Released(string, int) { c.s.concurrentReleased.Add(1) }

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	RateAcquired       int64            `json:"rate_acquired"`
	RateExceeded       int64            `json:"rate_exceeded"`
	RateRefilled       int64            `json:"rate_refilled"`
	ConcurrentAcquired int64            `json:"concurrent_acquired"`
	ConcurrentExceeded int64            `json:"concurrent_exceeded"`
	ConcurrentReleased int64            `json:"concurrent_released"`
	Requests           map[string]int64 `json:"requests"`
	Errors             map[string]int64 `json:"errors"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	req := make(map[string]int64, len(s.requests))
	for k, v := range s.requests {
		req[k] = v
	}
	errs := make(map[string]int64, len(s.errors))
	for k, v := range s.errors {
		errs[k] = v
	}
	s.mu.Unlock()

	return Stats{
		RateAcquired:       s.rateAcquired.Load(),
		RateExceeded:       s.rateExceeded.Load(),
		RateRefilled:       s.rateRefilled.Load(),
		ConcurrentAcquired: s.concurrentAcquired.Load(),
		ConcurrentExceeded: s.concurrentExceeded.Load(),
		ConcurrentReleased: s.concurrentReleased.Load(),
		Requests:           req,
		Errors:             errs,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.rateAcquired.Store(0)
	s.rateExceeded.Store(0)
	s.rateRefilled.Store(0)
	s.concurrentAcquired.Store(0)
	s.concurrentExceeded.Store(0)
	s.concurrentReleased.Store(0)

	s.mu.Lock()
	s.requests = make(map[string]int64)
	s.errors = make(map[string]int64)
	s.mu.Unlock()
}

var _ interceptor.StatsRecorder = (*StatsService)(nil)
