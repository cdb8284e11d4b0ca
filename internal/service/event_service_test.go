package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/rpcguard/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingStore blocks every Record until release is closed.
type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (b *blockingStore) Record(_ context.Context, events []admission.Event) error {
	<-b.release
	b.mu.Lock()
	b.count += len(events)
	b.mu.Unlock()
	return nil
}

type failingStore struct{}

func (failingStore) Record(context.Context, []admission.Event) error {
	return errors.New("store unavailable")
}

// flushingStore records events and counts Flush calls.
type flushingStore struct {
	mu      sync.Mutex
	events  int
	flushes int
	// eventsAtFlush is the event count seen by the last Flush.
	eventsAtFlush int
}

func (f *flushingStore) Record(_ context.Context, events []admission.Event) error {
	f.mu.Lock()
	f.events += len(events)
	f.mu.Unlock()
	return nil
}

func (f *flushingStore) Flush() error {
	f.mu.Lock()
	f.flushes++
	f.eventsAtFlush = f.events
	f.mu.Unlock()
	return nil
}

func TestEventService_StopFlushesStore(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &flushingStore{}
	svc := NewEventService(store, discardLogger(), WithBatchSize(100), WithFlushInterval(time.Hour))
	svc.Start(context.Background())

	obs := svc.RateObserver()
	obs.Acquired("k", 4)
	obs.Exceeded("k")
	svc.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.flushes != 1 {
		t.Errorf("Flush() called %d times, want 1", store.flushes)
	}
	if store.eventsAtFlush != 2 {
		t.Errorf("Flush() ran with %d events recorded, want 2", store.eventsAtFlush)
	}
}

func TestEventService_FlushOnBatchSize(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := memory.NewEventStore(100)
	svc := NewEventService(store, discardLogger(), WithBatchSize(2), WithFlushInterval(time.Hour))
	svc.Start(context.Background())

	obs := svc.RateObserver()
	obs.Acquired("10.0.0.1", 1)
	obs.Exceeded("10.0.0.1")

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("batch was not flushed, store has %d events", store.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()

	got := store.GetRecent(2)
	if got[0].Kind != admission.KindExceeded || got[1].Kind != admission.KindAcquired {
		t.Errorf("kinds = %s, %s", got[0].Kind, got[1].Kind)
	}
	if got[1].Limiter != admission.LimiterRate || got[1].Value != 1 || got[1].At.IsZero() {
		t.Errorf("event = %+v", got[1])
	}
}

func TestEventService_StopFlushesPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := memory.NewEventStore(100)
	svc := NewEventService(store, discardLogger(), WithBatchSize(100), WithFlushInterval(time.Hour))
	svc.Start(context.Background())

	obs := svc.ConcurrencyObserver()
	obs.Acquired("k", 1)
	obs.Released("k", 0)
	svc.Stop()

	if store.Len() != 2 {
		t.Fatalf("store has %d events after Stop, want 2", store.Len())
	}
	if got := store.GetRecent(1)[0]; got.Limiter != admission.LimiterConcurrent || got.Kind != admission.KindReleased {
		t.Errorf("latest event = %+v", got)
	}

	// Stop is idempotent and later events are dropped, not panicking.
	svc.Stop()
	obs.Exceeded("k")
	if svc.DroppedEvents() != 1 {
		t.Errorf("DroppedEvents() = %d, want 1", svc.DroppedEvents())
	}
}

func TestEventService_DropsWhenFull(t *testing.T) {
	t.Parallel()

	store := &blockingStore{release: make(chan struct{})}
	svc := NewEventService(store, discardLogger(), WithChannelSize(1), WithBatchSize(1))
	svc.Start(context.Background())

	for i := 0; i < 20; i++ {
		svc.Record(admission.Event{Key: "k"})
	}

	if svc.DroppedEvents() == 0 {
		t.Error("expected drops when the buffer is full")
	}
	close(store.release)
	svc.Stop()
}

func TestEventService_ContextCancelFlushes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := memory.NewEventStore(100)
	svc := NewEventService(store, discardLogger(), WithBatchSize(100), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	svc.Record(admission.Event{Key: "k"})
	time.Sleep(20 * time.Millisecond)
	cancel()
	svc.wg.Wait()

	if store.Len() != 1 {
		t.Errorf("store has %d events, want 1", store.Len())
	}
	svc.Stop()
}

func TestEventService_StoreErrorsAreLogged(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc := NewEventService(failingStore{}, discardLogger(), WithBatchSize(1))
	svc.Start(context.Background())
	svc.Record(admission.Event{Key: "k"})
	svc.Stop()
}
