package ratelimit

import "context"

// TokenBucket is a per-key token-bucket limiter.
//
// Every key has a virtual bucket of BucketConfig.Capacity tokens. A key the
// limiter does not track is full. A refill tick adds one token to every
// tracked key and forgets keys that become full again, so memory is bounded
// by the number of keys that are currently under-full.
type TokenBucket interface {
	// Start activates the periodic refill. It returns ErrDestroyed after
	// Destroy and ErrAlreadyStarted on a second call. The refill keeps
	// running after ctx is cancelled; only Destroy stops it.
	Start(ctx context.Context) error

	// TryAcquire consumes one token for key. It reports false when the
	// bucket is empty and returns ErrDestroyed after Destroy.
	TryAcquire(key string) (bool, error)

	// Destroy stops the refill and clears all state. A second call returns
	// ErrDestroyed.
	Destroy() error

	// Size returns the number of tracked (non-full) keys.
	Size() int
}
