package middleware_test

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/middleware"
	"github.com/plaenen/tenant-eventstore/pkg/security/credentials"
)

func TestBearerAuthInterceptorAcceptsMatchingToken(t *testing.T) {
	provider := credentials.NewStaticTokenProvider("secret-token", 0)
	interceptor := middleware.NewBearerAuthInterceptor(provider)

	called := false
	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		called = true
		return connect.NewResponse(&struct{}{}), nil
	})

	req := connect.NewRequest(&struct{}{})
	req.Header().Set("Authorization", "Bearer secret-token")

	_, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.True(t, called)
}

func TestBearerAuthInterceptorRejectsWrongToken(t *testing.T) {
	provider := credentials.NewStaticTokenProvider("secret-token", 0)
	interceptor := middleware.NewBearerAuthInterceptor(provider)

	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		t.Fatal("handler should not run with a wrong token")
		return nil, nil
	})

	req := connect.NewRequest(&struct{}{})
	req.Header().Set("Authorization", "Bearer wrong-token")

	_, err := handler(context.Background(), req)
	require.Error(t, err)
	var connErr *connect.Error
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, connect.CodeUnauthenticated, connErr.Code())
}

func TestBearerAuthInterceptorRejectsMissingHeader(t *testing.T) {
	provider := credentials.NewStaticTokenProvider("secret-token", 0)
	interceptor := middleware.NewBearerAuthInterceptor(provider)

	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		t.Fatal("handler should not run without a token")
		return nil, nil
	})

	_, err := handler(context.Background(), connect.NewRequest(&struct{}{}))
	require.Error(t, err)
}

func TestBearerAuthInterceptorRejectsExpiredCredentials(t *testing.T) {
	provider := credentials.NewStaticTokenProvider("secret-token", time.Nanosecond)
	time.Sleep(time.Millisecond)
	interceptor := middleware.NewBearerAuthInterceptor(provider)

	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		t.Fatal("handler should not run with expired credentials")
		return nil, nil
	})

	req := connect.NewRequest(&struct{}{})
	req.Header().Set("Authorization", "Bearer secret-token")

	_, err := handler(context.Background(), req)
	require.Error(t, err)
}
