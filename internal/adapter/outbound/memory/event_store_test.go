package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
)

func TestEventStore_GetRecentNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewEventStore(10)
	err := store.Record(context.Background(), []admission.Event{
		{Key: "a", Kind: admission.KindAcquired},
		{Key: "b", Kind: admission.KindExceeded},
		{Key: "c", Kind: admission.KindRefilled},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	got := store.GetRecent(2)
	if len(got) != 2 {
		t.Fatalf("GetRecent(2) returned %d events", len(got))
	}
	if got[0].Key != "c" || got[1].Key != "b" {
		t.Errorf("GetRecent(2) keys = %q, %q; want c, b", got[0].Key, got[1].Key)
	}
	if store.GetRecent(0) != nil {
		t.Error("GetRecent(0) should return nil")
	}
}

func TestEventStore_Wraparound(t *testing.T) {
	t.Parallel()

	store := NewEventStore(3)
	for _, key := range []string{"1", "2", "3", "4", "5"} {
		_ = store.Record(context.Background(), []admission.Event{{Key: key}})
	}

	if store.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", store.Len())
	}
	got := store.GetRecent(10)
	want := []string{"5", "4", "3"}
	for i, ev := range got {
		if ev.Key != want[i] {
			t.Errorf("event %d key = %q, want %q", i, ev.Key, want[i])
		}
	}
}

func TestEventStore_DefaultCapacity(t *testing.T) {
	t.Parallel()

	store := NewEventStore(0)
	if len(store.recent) != defaultRecentCap {
		t.Errorf("capacity = %d, want %d", len(store.recent), defaultRecentCap)
	}
}

func TestEventStore_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	store := NewEventStore(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.Record(context.Background(), []admission.Event{{Key: "k"}})
			}
		}()
	}
	wg.Wait()

	if store.Len() != 500 {
		t.Errorf("Len() = %d, want 500", store.Len())
	}
}
