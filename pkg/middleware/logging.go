package middleware

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/plaenen/tenant-eventstore/pkg/multitenancy"
	"github.com/plaenen/tenant-eventstore/pkg/wire"
)

// LoggingInterceptor logs every RPC's procedure, tenant, and outcome with
// timing information using slog.
type LoggingInterceptor struct {
	logger *slog.Logger
}

func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

func (l *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		procedure := req.Spec().Procedure
		start := time.Now()

		var extra []any
		if aggID := aggregateIDForLog(req.Any()); aggID != "" {
			extra = append(extra, slog.String("aggregate_id", aggID))
		}

		l.logger.InfoContext(ctx, "rpc started",
			append([]any{
				slog.String("procedure", procedure),
				slog.String("tenant_id", tenantForLog(ctx)),
			}, extra...)...,
		)

		resp, err := next(ctx, req)
		if err == nil {
			if nonce, ok := nonceForLog(resp.Any()); ok {
				extra = append(extra, slog.Uint64("aggregate_nonce", nonce))
			}
		}
		l.logOutcome(ctx, procedure, start, err, extra...)
		return resp, err
	}
}

func (l *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (l *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		procedure := conn.Spec().Procedure
		start := time.Now()

		l.logger.InfoContext(ctx, "stream opened",
			slog.String("procedure", procedure),
			slog.String("tenant_id", tenantForLog(ctx)),
		)

		err := next(ctx, conn)
		l.logOutcome(ctx, procedure, start, err)
		return err
	}
}

func (l *LoggingInterceptor) logOutcome(ctx context.Context, procedure string, start time.Time, err error, extra ...any) {
	duration := time.Since(start)
	fields := []any{
		slog.String("procedure", procedure),
		slog.Int64("duration_ms", duration.Milliseconds()),
	}
	fields = append(fields, extra...)
	if err != nil {
		fields = append(fields, slog.String("error", err.Error()))
		l.logger.ErrorContext(ctx, "rpc failed", fields...)
		return
	}
	l.logger.InfoContext(ctx, "rpc completed", fields...)
}

func tenantForLog(ctx context.Context) string {
	tenantID, err := multitenancy.GetTenantID(ctx)
	if err != nil {
		return ""
	}
	return tenantID
}

// aggregateIDForLog extracts the aggregate_id field from a decoded request
// message, if the procedure is one that carries one.
func aggregateIDForLog(msg any) string {
	switch m := msg.(type) {
	case *wire.AppendRequest:
		return m.AggregateID
	case *wire.ReadStreamRequest:
		return m.AggregateID
	default:
		return ""
	}
}

// nonceForLog extracts the resulting aggregate nonce from a decoded response
// message, if the procedure is one that returns one.
func nonceForLog(msg any) (uint64, bool) {
	switch m := msg.(type) {
	case *wire.AppendResponse:
		return m.LastAggregateNonce, true
	default:
		return 0, false
	}
}
