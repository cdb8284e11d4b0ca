package ratelimit

import (
	"errors"
	"fmt"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// Stable error codes reported to callers.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeDestroyed         = "RATE_LIMIT_MIDDLEWARE_DESTROYED"
)

var (
	// ErrRateLimitExceeded is matched by every RateLimitError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrDestroyed is returned by every operation on a destroyed limiter.
	ErrDestroyed = rpc.NewCodedError(CodeDestroyed, "the rate limit middleware is destroyed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("rate limiter already started")
)

// RateLimitError is returned when a request is rejected because its key has
// no token left.
type RateLimitError struct {
	// Key is the identity whose bucket was empty.
	Key string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: the rate limit is exceeded", CodeRateLimitExceeded)
}

// Code returns the stable error code.
func (e *RateLimitError) Code() string {
	return CodeRateLimitExceeded
}

// Unwrap returns ErrRateLimitExceeded.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// IsRateLimitError reports whether err is a rate limit rejection.
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
