package interceptor

import (
	"context"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// StatsRecorder counts requests and failures per method.
type StatsRecorder interface {
	IncRequests(method string)
	IncErrors(method string)
}

// Stats counts every request and every failed request by method.
type Stats struct {
	rpc.Noop
	recorder StatsRecorder
}

// NewStats creates a Stats interceptor.
func NewStats(recorder StatsRecorder) *Stats {
	return &Stats{recorder: recorder}
}

// Intercept counts the request, then the error if next fails.
func (s *Stats) Intercept(ctx context.Context, req *rpc.Request, next rpc.Next) (any, error) {
	s.recorder.IncRequests(req.Method)
	result, err := next(ctx)
	if err != nil {
		s.recorder.IncErrors(req.Method)
	}
	return result, err
}

var _ rpc.Interceptor = (*Stats)(nil)
