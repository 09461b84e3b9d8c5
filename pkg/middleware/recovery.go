// Package middleware holds cross-cutting connect.Interceptor
// implementations shared by every RPC: panic recovery, request logging, and
// bearer-token authentication.
// Tenant extraction lives in pkg/multitenancy; tracing/metrics live in
// pkg/observability.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"connectrpc.com/connect"
)

// RecoveryInterceptor recovers from panics anywhere in the handler chain,
// logs the stack trace, and turns the panic into a connect.CodeInternal
// error instead of crashing the process.
type RecoveryInterceptor struct {
	logger *slog.Logger
}

func NewRecoveryInterceptor(logger *slog.Logger) *RecoveryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryInterceptor{logger: logger}
}

func (r *RecoveryInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
		defer r.recover(ctx, req.Spec().Procedure, &err)
		return next(ctx, req)
	}
}

func (r *RecoveryInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (r *RecoveryInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) (err error) {
		defer r.recover(ctx, conn.Spec().Procedure, &err)
		return next(ctx, conn)
	}
}

func (r *RecoveryInterceptor) recover(ctx context.Context, procedure string, err *error) {
	if rec := recover(); rec != nil {
		stack := string(debug.Stack())
		r.logger.ErrorContext(ctx, "handler panicked",
			slog.String("procedure", procedure),
			slog.Any("panic", rec),
			slog.String("stack_trace", stack),
		)
		*err = connect.NewError(connect.CodeInternal, fmt.Errorf("handler panicked: %v", rec))
	}
}
