package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/middleware"
)

func TestLoggingInterceptorLogsSuccessAndFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	interceptor := middleware.NewLoggingInterceptor(logger)

	ok := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&struct{}{}), nil
	})
	_, err := ok(context.Background(), connect.NewRequest(&struct{}{}))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "rpc completed")

	buf.Reset()
	failing := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeInternal, assertErr)
	})
	_, err = failing(context.Background(), connect.NewRequest(&struct{}{}))
	require.Error(t, err)
	require.Contains(t, buf.String(), "rpc failed")
}

type testError string

func (e testError) Error() string { return string(e) }

const assertErr = testError("boom")
