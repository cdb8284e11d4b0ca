// Package redisstore provides Redis-backed implementations of outbound ports.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
)

const defaultPrefix = "rpcguard:admission"

// Option configures an EventStore.
type Option func(*EventStore)

// WithPrefix sets the key prefix. Surrounding colons are trimmed.
func WithPrefix(prefix string) Option {
	return func(s *EventStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithTTL sets the expiry of per-minute and per-key hashes. Zero disables it.
func WithTTL(d time.Duration) Option {
	return func(s *EventStore) { s.ttl = d }
}

// WithTrackKeys enables one hash per limiter key.
func WithTrackKeys(track bool) Option {
	return func(s *EventStore) { s.trackKeys = track }
}

// EventStore implements admission.EventStore as Redis hash counters.
//
// Layout, for limiter L and kind K:
//
//	<prefix>:total            field L:K   cumulative, never expires
//	<prefix>:minute:<yyyymmddhhmm>  field L:K
//	<prefix>:key:<key>        field L:K   only with WithTrackKeys
//
// Limiter state itself never lives in Redis.
type EventStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

// NewEventStore creates a Redis event store.
func NewEventStore(rdb redis.Cmdable, opts ...Option) *EventStore {
	s := &EventStore{
		rdb:    rdb,
		prefix: defaultPrefix,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the counters for every event in one pipeline.
func (s *EventStore) Record(ctx context.Context, events []admission.Event) error {
	if s == nil || s.rdb == nil || len(events) == 0 {
		return nil
	}

	totalKey := s.prefix + ":total"
	pipe := s.rdb.Pipeline()
	expiring := make(map[string]struct{})

	for _, ev := range events {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		field := ev.Limiter + ":" + string(ev.Kind)

		pipe.HIncrBy(ctx, totalKey, field, 1)

		minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, minuteKey, field, 1)
		expiring[minuteKey] = struct{}{}

		if s.trackKeys && ev.Key != "" {
			keyKey := s.prefix + ":key:" + ev.Key
			pipe.HIncrBy(ctx, keyKey, field, 1)
			expiring[keyKey] = struct{}{}
		}
	}

	if s.ttl > 0 {
		for key := range expiring {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record admission events: %w", err)
	}
	return nil
}

var _ admission.EventStore = (*EventStore)(nil)
