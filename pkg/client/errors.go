package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrRateLimited is returned when the server's rate limit rejected the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrConcurrencyLimited is returned when the caller has too many calls in flight.
	ErrConcurrencyLimited = errors.New("concurrency limited")

	// ErrUnavailable is returned when the server's limiters are shut down.
	ErrUnavailable = errors.New("service unavailable")

	// ErrMethodNotFound is returned for methods the server does not register.
	ErrMethodNotFound = errors.New("method not found")

	// ErrServerUnreachable is returned when the server cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// Error codes returned by the server.
const (
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeRateLimitDestroyed       = "RATE_LIMIT_MIDDLEWARE_DESTROYED"
	CodeConcurrentLimitExceeded  = "CONCURRENT_LIMIT_EXCEEDED"
	CodeConcurrentLimitDestroyed = "CONCURRENT_LIMIT_MIDDLEWARE_DESTROYED"
	CodeMethodNotFound           = "METHOD_NOT_FOUND"
)

// CallError is a failed call as reported by the server.
type CallError struct {
	// Method is the called method.
	Method string
	// Status is the HTTP status code.
	Status int
	// Code is the machine-readable error code.
	Code string
	// Message is the server's error message.
	Message string
	// RequestID is the X-Request-ID of the call.
	RequestID string
}

// Error returns a human-readable description of the failure.
func (e *CallError) Error() string {
	return fmt.Sprintf("rpcguard %s [%s]: %s", e.Method, e.Code, e.Message)
}

// Is supports errors.Is against the sentinel errors above.
func (e *CallError) Is(target error) bool {
	switch e.Code {
	case CodeRateLimitExceeded:
		return target == ErrRateLimited
	case CodeConcurrentLimitExceeded:
		return target == ErrConcurrencyLimited
	case CodeRateLimitDestroyed, CodeConcurrentLimitDestroyed:
		return target == ErrUnavailable
	case CodeMethodNotFound:
		return target == ErrMethodNotFound
	}
	return false
}

// Retryable reports whether the call was rejected by an admission limiter.
func (e *CallError) Retryable() bool {
	return e.Code == CodeRateLimitExceeded || e.Code == CodeConcurrentLimitExceeded
}

// ServerUnreachableError is returned when the server cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
