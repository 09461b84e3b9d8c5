package middleware_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/middleware"
)

func TestRecoveryInterceptorTurnsPanicIntoInternalError(t *testing.T) {
	interceptor := middleware.NewRecoveryInterceptor(nil)

	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		panic("boom")
	})

	_, err := handler(context.Background(), connect.NewRequest(&struct{}{}))

	require.Error(t, err)
	var connErr *connect.Error
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, connect.CodeInternal, connErr.Code())
}

func TestRecoveryInterceptorPassesThroughOnSuccess(t *testing.T) {
	interceptor := middleware.NewRecoveryInterceptor(nil)

	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&struct{}{}), nil
	})

	resp, err := handler(context.Background(), connect.NewRequest(&struct{}{}))
	require.NoError(t, err)
	require.NotNil(t, resp)
}
