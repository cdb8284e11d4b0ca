// Package ratelimit provides token-bucket rate limiting domain types.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// BucketConfig defines the token-bucket parameters.
type BucketConfig struct {
	// Capacity is the maximum number of tokens per key.
	// A capacity of 0 rejects every request.
	Capacity int

	// Interval is the time it takes to refill exactly one token in every
	// bucket that is not full.
	Interval time.Duration
}

// Validate checks the configuration for values that cannot work.
func (c BucketConfig) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must be >= 0, got %d", c.Capacity)
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	return nil
}

// Observer receives token-bucket events. Implementations must be fast and
// must not call back into the limiter.
type Observer interface {
	// Acquired is called after a token was consumed for key.
	Acquired(key string, remaining int)

	// Exceeded is called when key had no token left.
	Exceeded(key string)

	// Refilled is called for every key touched by a refill tick with the
	// token count after the refill.
	Refilled(key string, tokens int)
}

// ObserverFuncs adapts optional callbacks to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnAcquired func(key string, remaining int)
	OnExceeded func(key string)
	OnRefilled func(key string, tokens int)
}

// Acquired calls OnAcquired if set.
func (o ObserverFuncs) Acquired(key string, remaining int) {
	if o.OnAcquired != nil {
		o.OnAcquired(key, remaining)
	}
}

// Exceeded calls OnExceeded if set.
func (o ObserverFuncs) Exceeded(key string) {
	if o.OnExceeded != nil {
		o.OnExceeded(key)
	}
}

// Refilled calls OnRefilled if set.
func (o ObserverFuncs) Refilled(key string, tokens int) {
	if o.OnRefilled != nil {
		o.OnRefilled(key, tokens)
	}
}

// Compile-time check that ObserverFuncs implements Observer.
var _ Observer = ObserverFuncs{}
