package rpc

import "context"

// Next invokes the rest of the pipeline and returns its result.
type Next func(ctx context.Context) (any, error)

// Handler is the terminal stage of a pipeline: the RPC method itself.
type Handler func(ctx context.Context, req *Request) (any, error)

// Interceptor is a stage of the request pipeline.
//
// Open is called once when the pipeline starts serving, Close once when it
// shuts down. Intercept is called for every request and decides whether to
// call next, post-process its outcome, or short-circuit with its own error.
type Interceptor interface {
	// Open activates the interceptor (start timers, acquire resources).
	Open(ctx context.Context) error

	// Intercept handles one request. Implementations that call next must
	// return its error unchanged unless they intentionally translate it.
	Intercept(ctx context.Context, req *Request, next Next) (any, error)

	// Close releases all resources held by the interceptor.
	Close() error
}

// Noop provides no-op lifecycle hooks. Embed it in interceptors that have
// nothing to start or stop.
type Noop struct{}

// Open does nothing.
func (Noop) Open(context.Context) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

// InterceptorFunc is an adapter to allow the use of ordinary functions as
// Interceptors. Like http.HandlerFunc, it enables inline interceptors.
type InterceptorFunc func(ctx context.Context, req *Request, next Next) (any, error)

// Open does nothing.
func (f InterceptorFunc) Open(context.Context) error { return nil }

// Intercept calls f(ctx, req, next).
func (f InterceptorFunc) Intercept(ctx context.Context, req *Request, next Next) (any, error) {
	return f(ctx, req, next)
}

// Close does nothing.
func (f InterceptorFunc) Close() error { return nil }

// Compile-time check that InterceptorFunc implements Interceptor.
var _ Interceptor = InterceptorFunc(nil)
