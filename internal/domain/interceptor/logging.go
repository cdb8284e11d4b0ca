package interceptor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

type skipLogKey struct{}

// MarkSkipLogging flags req so that Logging does not log it.
func MarkSkipLogging(req *rpc.Request) {
	req.Annotate(skipLogKey{}, true)
}

// IsLoggingSkipped reports whether req carries the skip-log marker.
func IsLoggingSkipped(req *rpc.Request) bool {
	v, ok := req.Annotation(skipLogKey{})
	if !ok {
		return false
	}
	skip, _ := v.(bool)
	return skip
}

// SkipLogging returns an interceptor that marks every request it sees as not
// to be logged. Place it inside a Logging interceptor, typically on the
// methods that are too chatty to log.
func SkipLogging() rpc.Interceptor {
	return rpc.InterceptorFunc(func(ctx context.Context, req *rpc.Request, next rpc.Next) (any, error) {
		MarkSkipLogging(req)
		return next(ctx)
	})
}

// LoggingOption configures a Logging interceptor.
type LoggingOption func(*Logging)

// WithLogIP adds the remote address to every log line.
func WithLogIP(enabled bool) LoggingOption {
	return func(l *Logging) {
		l.logIP = enabled
	}
}

// Logging logs the outcome and duration of every request: Info on success,
// Warn on failure. The skip marker is checked after next returns, so inner
// interceptors and handlers can set it.
type Logging struct {
	rpc.Noop
	logger *slog.Logger
	logIP  bool
	now    func() time.Time
}

// NewLogging creates a Logging interceptor.
func NewLogging(logger *slog.Logger, opts ...LoggingOption) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logging{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Intercept runs next and logs its outcome. Errors are returned unchanged.
func (l *Logging) Intercept(ctx context.Context, req *rpc.Request, next rpc.Next) (any, error) {
	start := l.now()
	result, err := next(ctx)

	if IsLoggingSkipped(req) {
		return result, err
	}

	attrs := make([]any, 0, 14)
	if l.logIP {
		ip := req.Connection.RemoteHost
		if ip == "" {
			ip = rpc.UnknownKey
		}
		attrs = append(attrs, "ip", ip)
	}
	attrs = append(attrs,
		"request_id", req.ID,
		"method", req.Method,
		"public_key", req.Connection.PublicKeyString(),
		"duration", l.now().Sub(start),
	)

	if err != nil {
		attrs = append(attrs, "error", err.Error(), "code", rpc.ErrorCode(err))
		l.logger.WarnContext(ctx, "rpc request failed", attrs...)
		return result, err
	}

	l.logger.InfoContext(ctx, "rpc request succeeded", attrs...)
	return result, nil
}

var _ rpc.Interceptor = (*Logging)(nil)
