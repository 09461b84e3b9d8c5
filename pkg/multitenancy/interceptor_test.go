package multitenancy_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/multitenancy"
)

func TestInterceptorExtractsTenantFromHeader(t *testing.T) {
	interceptor := multitenancy.NewInterceptor()

	var sawTenant string
	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		tenantID, err := multitenancy.GetTenantID(ctx)
		require.NoError(t, err)
		sawTenant = tenantID
		return connect.NewResponse(&struct{}{}), nil
	})

	req := connect.NewRequest(&struct{}{})
	req.Header().Set(multitenancy.TenantHeader, "tenant-a")

	_, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "tenant-a", sawTenant)
}

func TestInterceptorRejectsMissingTenantHeader(t *testing.T) {
	interceptor := multitenancy.NewInterceptor()

	handler := interceptor.WrapUnary(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		t.Fatal("handler should not run without a tenant header")
		return nil, nil
	})

	req := connect.NewRequest(&struct{}{})
	_, err := handler(context.Background(), req)

	require.Error(t, err)
	var connErr *connect.Error
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, connect.CodeUnauthenticated, connErr.Code())
}

func TestGetTenantIDMissingReturnsError(t *testing.T) {
	_, err := multitenancy.GetTenantID(context.Background())
	require.Error(t, err)
}
