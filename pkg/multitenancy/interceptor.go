package multitenancy

import (
	"context"

	"connectrpc.com/connect"
)

// TenantHeader is the HTTP/Connect header clients use to identify their
// tenant. Interceptor puts its value in context, where the logging
// interceptor reads it. pkg/rpc passes the request body's tenant_id to the
// engine and does not compare it with this header.
const TenantHeader = "Tenant-Id"

// Interceptor extracts the caller's tenant from the Tenant-Id header and
// places it in context before the request reaches the façade. Requests
// without the header fail closed with CodeUnauthenticated rather than
// falling back to an ambient or default tenant.
type Interceptor struct{}

func NewInterceptor() *Interceptor {
	return &Interceptor{}
}

func (i *Interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, err := withTenantFromHeader(ctx, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *Interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *Interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := withTenantFromHeader(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func withTenantFromHeader(ctx context.Context, header interface{ Get(string) string }) (context.Context, error) {
	tenantID := header.Get(TenantHeader)
	if tenantID == "" {
		return ctx, connect.NewError(connect.CodeUnauthenticated, errMissingTenantHeader)
	}
	return WithTenantID(ctx, tenantID), nil
}

type tenantError string

func (e tenantError) Error() string { return string(e) }

const errMissingTenantHeader = tenantError("missing " + TenantHeader + " header")
