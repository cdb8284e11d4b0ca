package interceptor

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// ConcurrentLimit admits requests while their key has a free in-flight slot.
// It never queues: a request without a slot is rejected immediately.
type ConcurrentLimit struct {
	rpc.Noop
	limiter concurrency.Limiter
	key     rpc.KeyFunc
	logger  *slog.Logger
	warn    rate.Sometimes
}

// NewConcurrentLimit creates a ConcurrentLimit interceptor. A nil key function
// keys by remote address.
func NewConcurrentLimit(limiter concurrency.Limiter, key rpc.KeyFunc, logger *slog.Logger) *ConcurrentLimit {
	if key == nil {
		key = rpc.ByRemoteAddress()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConcurrentLimit{
		limiter: limiter,
		key:     key,
		logger:  logger,
		warn:    rate.Sometimes{First: 1, Interval: rejectionLogInterval},
	}
}

// Intercept holds a slot for the request's key while next runs. The slot is
// released on every exit path, panics included.
func (c *ConcurrentLimit) Intercept(ctx context.Context, req *rpc.Request, next rpc.Next) (any, error) {
	key := c.key(req)

	ok, err := c.limiter.TryAcquire(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.warn.Do(func() {
			c.logger.Warn("concurrent limit reached",
				"key", key,
				"method", req.Method,
				"request_id", req.ID,
			)
		})
		return nil, &concurrency.ConcurrentLimitError{Key: key}
	}
	defer c.limiter.Release(key)

	return next(ctx)
}

// Close destroys the limiter.
func (c *ConcurrentLimit) Close() error {
	return c.limiter.Destroy()
}

// Size returns the number of keys with requests in flight.
func (c *ConcurrentLimit) Size() int {
	return c.limiter.Size()
}

var _ rpc.Interceptor = (*ConcurrentLimit)(nil)
