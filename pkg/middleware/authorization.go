package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"connectrpc.com/connect"

	"github.com/plaenen/tenant-eventstore/pkg/security/credentials"
)

// BearerAuthInterceptor rejects any RPC whose "Authorization: Bearer <token>"
// header doesn't match the token served by the configured
// credentials.Provider. The provider is re-queried on every call so
// rotation (credentials.Provider.Rotate) takes effect without a restart.
type BearerAuthInterceptor struct {
	provider credentials.Provider
}

func NewBearerAuthInterceptor(provider credentials.Provider) *BearerAuthInterceptor {
	return &BearerAuthInterceptor{provider: provider}
}

func (a *BearerAuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := a.authenticate(ctx, req.Header()); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (a *BearerAuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (a *BearerAuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := a.authenticate(ctx, conn.RequestHeader()); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (a *BearerAuthInterceptor) authenticate(ctx context.Context, header interface{ Get(string) string }) error {
	creds, err := a.provider.GetCredentials(ctx)
	if err != nil {
		return connect.NewError(connect.CodeUnauthenticated, err)
	}
	if creds.IsExpired() {
		return connect.NewError(connect.CodeUnauthenticated, credentials.ErrCredentialsExpired)
	}

	presented := strings.TrimPrefix(header.Get("Authorization"), "Bearer ")
	if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(creds.Token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	return nil
}

var errInvalidToken = authError("missing or invalid bearer token")

type authError string

func (e authError) Error() string { return string(e) }
