package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/ratelimit"
)

// finalFlushTimeout bounds the flush performed on shutdown.
const finalFlushTimeout = 5 * time.Second

// EventService forwards admission events to an EventStore from a background
// worker. Recording never blocks the admission path: when the buffer is full
// the event is dropped and counted.
type EventService struct {
	store         admission.EventStore
	events        chan admission.Event
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started atomic.Bool

	dropCount   atomic.Int64
	lastWarning atomic.Int64
	now         func() time.Time
}

// EventOption configures EventService.
type EventOption func(*EventService)

// WithBatchSize sets the number of events to batch before writing.
func WithBatchSize(size int) EventOption {
	return func(s *EventService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFlushInterval sets the interval to flush pending events.
func WithFlushInterval(interval time.Duration) EventOption {
	return func(s *EventService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithChannelSize sets the size of the event buffer.
func WithChannelSize(size int) EventOption {
	return func(s *EventService) {
		if size > 0 {
			s.events = make(chan admission.Event, size)
		}
	}
}

// NewEventService creates a new EventService writing to store.
func NewEventService(store admission.EventStore, logger *slog.Logger, opts ...EventOption) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EventService{
		store:         store,
		events:        make(chan admission.Event, 1000),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker. Later calls are no-ops.
func (s *EventService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues ev for the worker. Events recorded after Stop are dropped.
func (s *EventService) Record(ev admission.Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropCount.Add(1)
		return
	}

	select {
	case s.events <- ev:
	default:
		s.recordDrop()
	}
}

// recordDrop counts a dropped event and warns at most once per second.
func (s *EventService) recordDrop() {
	drops := s.dropCount.Add(1)

	now := s.now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("admission event dropped",
			"capacity", cap(s.events),
			"total_drops", drops,
		)
	}
}

// DroppedEvents returns the number of events dropped so far.
func (s *EventService) DroppedEvents() int64 {
	return s.dropCount.Load()
}

// Stop closes the buffer, waits for the worker and flushes pending events.
// Safe to call multiple times.
func (s *EventService) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *EventService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]admission.Event, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	finalFlush := func() {
		if len(batch) > 0 {
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			defer cancel()
			s.flush(flushCtx, batch)
		}
		if f, ok := s.store.(admission.Flusher); ok {
			if err := f.Flush(); err != nil {
				s.logger.Error("failed to flush admission event store", "error", err)
			}
		}
	}

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				finalFlush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain what is already buffered without waiting for Stop.
		drain:
			for {
				select {
				case ev, ok := <-s.events:
					if !ok {
						break drain
					}
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			finalFlush()
			return
		}
	}
}

// flush writes a batch to the store. Errors are logged, never propagated.
func (s *EventService) flush(ctx context.Context, batch []admission.Event) {
	if err := s.store.Record(ctx, batch); err != nil {
		s.logger.Error("failed to write admission events",
			"error", err,
			"count", len(batch),
		)
	}
}

// RateObserver returns an observer that records token-bucket events.
func (s *EventService) RateObserver() ratelimit.Observer {
	return ratelimit.ObserverFuncs{
		OnAcquired: func(key string, remaining int) {
			s.Record(admission.Event{Limiter: admission.LimiterRate, Kind: admission.KindAcquired, Key: key, Value: remaining})
		},
		OnExceeded: func(key string) {
			s.Record(admission.Event{Limiter: admission.LimiterRate, Kind: admission.KindExceeded, Key: key})
		},
		OnRefilled: func(key string, tokens int) {
			s.Record(admission.Event{Limiter: admission.LimiterRate, Kind: admission.KindRefilled, Key: key, Value: tokens})
		},
	}
}

// ConcurrencyObserver returns an observer that records concurrency-limiter events.
func (s *EventService) ConcurrencyObserver() concurrency.Observer {
	return concurrencyEvents{s: s}
}

type concurrencyEvents struct {
	s *EventService
}

func (c concurrencyEvents) Acquired(key string, active int) {
	c.s.Record(admission.Event{Limiter: admission.LimiterConcurrent, Kind: admission.KindAcquired, Key: key, Value: active})
}

func (c concurrencyEvents) Exceeded(key string) {
	c.s.Record(admission.Event{Limiter: admission.LimiterConcurrent, Kind: admission.KindExceeded, Key: key})
}

func (c concurrencyEvents) Released(key string, active int) {
	c.s.Record(admission.Event{Limiter: admission.LimiterConcurrent, Kind: admission.KindReleased, Key: key, Value: active})
}
