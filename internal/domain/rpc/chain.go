package rpc

import (
	"context"
	"errors"
	"fmt"
)

// Chain composes interceptors into one ordered pipeline. The first
// interceptor is outermost: it sees the request first and the final result
// or error last. A Chain is itself an Interceptor, so chains nest.
type Chain struct {
	interceptors []Interceptor
}

// Compile-time check that Chain implements Interceptor.
var _ Interceptor = (*Chain)(nil)

// Compose builds a Chain from the given interceptors. Nil entries are skipped.
func Compose(interceptors ...Interceptor) *Chain {
	filtered := make([]Interceptor, 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			filtered = append(filtered, i)
		}
	}
	return &Chain{interceptors: filtered}
}

// Len returns the number of interceptors in the chain.
func (c *Chain) Len() int {
	return len(c.interceptors)
}

// Open opens every interceptor in order. If one fails, the interceptors
// already opened are closed in reverse order and the error is returned.
func (c *Chain) Open(ctx context.Context) error {
	for i, ic := range c.interceptors {
		if err := ic.Open(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = c.interceptors[j].Close()
			}
			return fmt.Errorf("open interceptor %d: %w", i, err)
		}
	}
	return nil
}

// Intercept runs the request through every interceptor and finally next.
func (c *Chain) Intercept(ctx context.Context, req *Request, next Next) (any, error) {
	// Build the chain from the handler backwards
	h := next
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		ic := c.interceptors[i]
		inner := h
		h = func(ctx context.Context) (any, error) {
			return ic.Intercept(ctx, req, inner)
		}
	}
	return h(ctx)
}

// Handle runs req through the chain and terminates with handler.
func (c *Chain) Handle(ctx context.Context, req *Request, handler Handler) (any, error) {
	return c.Intercept(ctx, req, func(ctx context.Context) (any, error) {
		return handler(ctx, req)
	})
}

// Close closes every interceptor in reverse order. All interceptors are
// closed even if some fail; the errors are joined.
func (c *Chain) Close() error {
	var errs []error
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		if err := c.interceptors[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
