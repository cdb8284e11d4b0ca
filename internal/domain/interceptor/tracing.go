package interceptor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

const tracerName = "github.com/Sentinel-Gate/rpcguard/internal/domain/interceptor"

// Tracing wraps every request in an OpenTelemetry span named after the
// method. Admission rejections and handler errors are recorded on the span.
type Tracing struct {
	rpc.Noop
	tracer trace.Tracer
}

// NewTracing creates a Tracing interceptor using tp.
func NewTracing(tp trace.TracerProvider) *Tracing {
	return &Tracing{tracer: tp.Tracer(tracerName)}
}

// Intercept starts a server span and passes its context to next.
func (t *Tracing) Intercept(ctx context.Context, req *rpc.Request, next rpc.Next) (any, error) {
	ctx, span := t.tracer.Start(ctx, req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.method", req.Method),
			attribute.String("rpc.request_id", req.ID),
		),
	)
	defer span.End()

	result, err := next(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("rpc.error_code", rpc.ErrorCode(err)))
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

var _ rpc.Interceptor = (*Tracing)(nil)
