// Package admission defines the events emitted by admission limiters and the
// port used to persist them.
package admission

import (
	"context"
	"time"
)

// Kind identifies what happened to a key.
type Kind string

// Event kinds.
const (
	KindAcquired Kind = "acquired"
	KindExceeded Kind = "exceeded"
	KindRefilled Kind = "refilled"
	KindReleased Kind = "released"
)

// Limiter names used in Event.Limiter.
const (
	LimiterRate       = "rate"
	LimiterConcurrent = "concurrent"
)

// Event is a single admission decision or state change for a key.
type Event struct {
	Limiter string `json:"limiter"`
	Kind    Kind   `json:"kind"`
	Key     string `json:"key"`
	// Value is the remaining tokens (rate) or the active count (concurrent).
	Value int       `json:"value"`
	At    time.Time `json:"at"`
}

// EventStore persists admission events.
// Record must be safe for concurrent use.
type EventStore interface {
	Record(ctx context.Context, events []Event) error
}

// Flusher is implemented by stores that buffer writes. Flush makes every
// recorded event durable.
type Flusher interface {
	Flush() error
}
