package observability

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Interceptor traces and measures every unary and streaming RPC against a
// single telemetry instance: one span per call, one RecordRequest per call.
type Interceptor struct {
	tel *Telemetry
}

func NewInterceptor(tel *Telemetry) *Interceptor {
	return &Interceptor{tel: tel}
}

func (i *Interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, span := i.startSpan(ctx, req.Spec().Procedure)
		defer span.End()

		start := time.Now()
		resp, err := next(ctx, req)
		i.finish(ctx, span, req.Spec().Procedure, start, err)
		return resp, err
	}
}

func (i *Interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *Interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, span := i.startSpan(ctx, conn.Spec().Procedure)
		defer span.End()

		if i.tel.Metrics != nil {
			i.tel.Metrics.ActiveSubscriptions.Add(ctx, 1)
			defer i.tel.Metrics.ActiveSubscriptions.Add(ctx, -1)
		}

		start := time.Now()
		err := next(ctx, conn)
		i.finish(ctx, span, conn.Spec().Procedure, start, err)
		return err
	}
}

func (i *Interceptor) startSpan(ctx context.Context, procedure string) (context.Context, trace.Span) {
	tracer := i.tel.Tracer("tenant-eventstore/rpc")
	return tracer.Start(ctx, procedure,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.procedure", procedure)),
	)
}

func (i *Interceptor) finish(ctx context.Context, span trace.Span, procedure string, start time.Time, err error) {
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Milliseconds())))

	if i.tel.Metrics != nil {
		i.tel.Metrics.RecordRequest(ctx, procedure, duration, err)
	}
}
