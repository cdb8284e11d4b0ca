// Package interceptor provides the admission, logging, stats and tracing
// interceptors that make up an RPC guard stack.
package interceptor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// rejectionLogInterval bounds how often rejections are logged per interceptor.
const rejectionLogInterval = time.Second

// RateLimit admits requests while their key has tokens left.
//
// Open starts the limiter's refill and Close destroys it, so the limiter's
// lifetime follows the chain that owns the interceptor.
type RateLimit struct {
	limiter ratelimit.TokenBucket
	key     rpc.KeyFunc
	logger  *slog.Logger
	warn    rate.Sometimes
}

// NewRateLimit creates a RateLimit interceptor. A nil key function keys by
// remote address.
func NewRateLimit(limiter ratelimit.TokenBucket, key rpc.KeyFunc, logger *slog.Logger) *RateLimit {
	if key == nil {
		key = rpc.ByRemoteAddress()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimit{
		limiter: limiter,
		key:     key,
		logger:  logger,
		warn:    rate.Sometimes{First: 1, Interval: rejectionLogInterval},
	}
}

// Open starts the refill loop.
func (r *RateLimit) Open(ctx context.Context) error {
	return r.limiter.Start(ctx)
}

// Intercept takes one token for the request's key before calling next.
// Returns *ratelimit.RateLimitError when the bucket is empty.
func (r *RateLimit) Intercept(ctx context.Context, req *rpc.Request, next rpc.Next) (any, error) {
	key := r.key(req)

	ok, err := r.limiter.TryAcquire(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.warn.Do(func() {
			r.logger.Warn("rate limited",
				"key", key,
				"method", req.Method,
				"request_id", req.ID,
			)
		})
		return nil, &ratelimit.RateLimitError{Key: key}
	}

	return next(ctx)
}

// Close destroys the limiter.
func (r *RateLimit) Close() error {
	return r.limiter.Destroy()
}

// Size returns the number of keys the limiter currently tracks.
func (r *RateLimit) Size() int {
	return r.limiter.Size()
}

var _ rpc.Interceptor = (*RateLimit)(nil)
