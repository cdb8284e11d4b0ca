package ratelimit

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

func TestBucketConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  BucketConfig
		wantErr bool
	}{
		{name: "valid", config: BucketConfig{Capacity: 10, Interval: 100 * time.Millisecond}},
		{name: "zero capacity", config: BucketConfig{Capacity: 0, Interval: time.Second}},
		{name: "negative capacity", config: BucketConfig{Capacity: -1, Interval: time.Second}, wantErr: true},
		{name: "zero interval", config: BucketConfig{Capacity: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateLimitError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("admission: %w", &RateLimitError{Key: "192.168.1.1"})

	if !IsRateLimitError(err) {
		t.Error("IsRateLimitError() = false, want true")
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.Key != "192.168.1.1" {
		t.Errorf("expected RateLimitError with key, got %v", err)
	}
	if got := rpc.ErrorCode(err); got != CodeRateLimitExceeded {
		t.Errorf("ErrorCode() = %q, want %q", got, CodeRateLimitExceeded)
	}
	if got := rpc.ErrorCode(ErrDestroyed); got != CodeDestroyed {
		t.Errorf("ErrorCode(ErrDestroyed) = %q, want %q", got, CodeDestroyed)
	}
	if IsRateLimitError(ErrDestroyed) {
		t.Error("ErrDestroyed must not be reported as a rate limit rejection")
	}
}

func TestObserverFuncs_NilFieldsAreSkipped(t *testing.T) {
	t.Parallel()

	var acquired []int
	obs := ObserverFuncs{OnAcquired: func(key string, remaining int) {
		acquired = append(acquired, remaining)
	}}

	obs.Acquired("k", 3)
	obs.Exceeded("k")
	obs.Refilled("k", 4)

	if len(acquired) != 1 || acquired[0] != 3 {
		t.Errorf("acquired = %v, want [3]", acquired)
	}
}
