package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
)

type recordingConcurrencyObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingConcurrencyObserver) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordingConcurrencyObserver) Acquired(key string, _ int) { o.add("acquired " + key) }
func (o *recordingConcurrencyObserver) Exceeded(key string)        { o.add("exceeded " + key) }
func (o *recordingConcurrencyObserver) Released(key string, _ int) { o.add("released " + key) }

func TestConcurrencyLimiter_CapacityThenReject(t *testing.T) {
	t.Parallel()

	l := NewConcurrencyLimiter(2)
	for i := 0; i < 2; i++ {
		if ok, err := l.TryAcquire("k"); !ok || err != nil {
			t.Fatalf("acquire %d = (%v, %v), want (true, nil)", i+1, ok, err)
		}
	}
	if ok, _ := l.TryAcquire("k"); ok {
		t.Error("third acquire admitted, want rejected")
	}
	if l.Size() != 1 {
		t.Errorf("Size() = %d, want 1", l.Size())
	}
}

func TestConcurrencyLimiter_ReleaseRestoresCapacity(t *testing.T) {
	t.Parallel()

	l := NewConcurrencyLimiter(1)
	if ok, _ := l.TryAcquire("k"); !ok {
		t.Fatal("first acquire rejected")
	}
	if ok, _ := l.TryAcquire("k"); ok {
		t.Fatal("second acquire admitted while slot held")
	}

	l.Release("k")
	if l.Size() != 0 {
		t.Errorf("Size() after release = %d, want 0", l.Size())
	}
	if ok, _ := l.TryAcquire("k"); !ok {
		t.Error("acquire after release rejected")
	}
}

func TestConcurrencyLimiter_ReleaseUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()

	l := NewConcurrencyLimiter(1)
	l.Release("never-acquired")
	if l.Size() != 0 {
		t.Errorf("Size() = %d, want 0", l.Size())
	}

	// An extra release must not grant extra capacity.
	l.TryAcquire("k")
	l.Release("k")
	l.Release("k")
	if ok, _ := l.TryAcquire("k"); !ok {
		t.Fatal("acquire rejected")
	}
	if ok, _ := l.TryAcquire("k"); ok {
		t.Error("double release granted a second slot")
	}
}

func TestConcurrencyLimiter_PerKeyIsolation(t *testing.T) {
	t.Parallel()

	l := NewConcurrencyLimiter(1)
	l.TryAcquire("a")
	if ok, _ := l.TryAcquire("b"); !ok {
		t.Error("key b rejected while only key a is busy")
	}
}

func TestConcurrencyLimiter_ZeroCapacity(t *testing.T) {
	t.Parallel()

	l := NewConcurrencyLimiter(0)
	if ok, _ := l.TryAcquire("k"); ok {
		t.Error("capacity 0 must reject")
	}
	if l.Size() != 0 {
		t.Errorf("Size() = %d, want 0", l.Size())
	}
}

func TestConcurrencyLimiter_Destroy(t *testing.T) {
	t.Parallel()

	l := NewConcurrencyLimiter(3)
	l.TryAcquire("k")

	if err := l.Destroy(); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}
	if err := l.Destroy(); !errors.Is(err, concurrency.ErrDestroyed) {
		t.Errorf("second Destroy() error = %v, want ErrDestroyed", err)
	}
	if ok, err := l.TryAcquire("k"); ok || !errors.Is(err, concurrency.ErrDestroyed) {
		t.Errorf("TryAcquire() after destroy = (%v, %v), want (false, ErrDestroyed)", ok, err)
	}

	// Release after destroy is a no-op.
	l.Release("k")
	if l.Size() != 0 {
		t.Errorf("Size() after destroy = %d, want 0", l.Size())
	}
}

func TestConcurrencyLimiter_Observer(t *testing.T) {
	t.Parallel()

	obs := &recordingConcurrencyObserver{}
	l := NewConcurrencyLimiter(1, WithConcurrencyObserver(obs))
	l.TryAcquire("k")
	l.TryAcquire("k")
	l.Release("k")
	l.Release("k")

	want := []string{"acquired k", "exceeded k", "released k"}
	if len(obs.events) != len(want) {
		t.Fatalf("events = %v, want %v", obs.events, want)
	}
	for i := range want {
		if obs.events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, obs.events[i], want[i])
		}
	}
}

func TestConcurrencyLimiter_ConcurrentNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 4
	l := NewConcurrencyLimiter(capacity, WithConcurrencyShards(2))

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ok, _ := l.TryAcquire("shared")
				if !ok {
					continue
				}
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				inFlight.Add(-1)
				l.Release("shared")
			}
		}()
	}
	wg.Wait()

	if peak.Load() > capacity {
		t.Errorf("peak in-flight = %d, want <= %d", peak.Load(), capacity)
	}
	if l.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after all releases", l.Size())
	}
}
