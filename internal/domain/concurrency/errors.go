package concurrency

import (
	"errors"
	"fmt"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// Stable error codes reported to callers.
const (
	CodeConcurrentLimitExceeded = "CONCURRENT_LIMIT_EXCEEDED"
	CodeDestroyed               = "CONCURRENT_LIMIT_MIDDLEWARE_DESTROYED"
)

var (
	// ErrConcurrentLimitExceeded is matched by every ConcurrentLimitError.
	ErrConcurrentLimitExceeded = errors.New("concurrent limit exceeded")

	// ErrDestroyed is returned by every operation on a destroyed limiter.
	ErrDestroyed = rpc.NewCodedError(CodeDestroyed, "the concurrent limit middleware is destroyed")
)

// ConcurrentLimitError is returned when a request is rejected because its
// key already has the maximum number of requests in flight.
type ConcurrentLimitError struct {
	// Key is the identity that had no free slot.
	Key string
}

// Error implements the error interface.
func (e *ConcurrentLimitError) Error() string {
	return fmt.Sprintf("%s: the concurrent limit is exceeded", CodeConcurrentLimitExceeded)
}

// Code returns the stable error code.
func (e *ConcurrentLimitError) Code() string {
	return CodeConcurrentLimitExceeded
}

// Unwrap returns ErrConcurrentLimitExceeded.
func (e *ConcurrentLimitError) Unwrap() error {
	return ErrConcurrentLimitExceeded
}
