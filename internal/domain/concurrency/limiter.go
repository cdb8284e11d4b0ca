// Package concurrency provides per-key in-flight request limiting domain types.
package concurrency

// Limiter bounds the number of in-flight requests per key.
//
// Admission never waits: TryAcquire either takes a slot immediately or
// reports false. Every successful TryAcquire must be paired with exactly one
// Release for the same key, on every exit path of the guarded operation.
type Limiter interface {
	// TryAcquire takes a slot for key. It reports false when key already has
	// Capacity requests in flight and returns ErrDestroyed after Destroy.
	TryAcquire(key string) (bool, error)

	// Release frees a slot for key. Releasing a key that holds no slot is a
	// no-op, including after Destroy.
	Release(key string)

	// Destroy clears all state. A second call returns ErrDestroyed.
	Destroy() error

	// Size returns the number of keys with at least one request in flight.
	Size() int
}

// Observer receives concurrency-limiter events.
type Observer interface {
	// Acquired is called after key took a slot, with the new in-flight count.
	Acquired(key string, active int)

	// Exceeded is called when key had no free slot.
	Exceeded(key string)

	// Released is called after key freed a slot, with the remaining count.
	Released(key string, active int)
}
