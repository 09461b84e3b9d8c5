package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/plaenen/tenant-eventstore/pkg/wire"
)

const (
	serviceName = "tenant.eventstore.v1.EventStoreService"

	ProcedureAppend     = "/" + serviceName + "/Append"
	ProcedureReadStream = "/" + serviceName + "/ReadStream"
	ProcedureSubscribe  = "/" + serviceName + "/Subscribe"
)

// NewHandler builds an http.Handler serving every RPC at its Connect
// procedure path, wired to use wire.Codec (hand-rolled protobuf wire
// format) in place of connect's built-in JSON/proto codecs.
func NewHandler(svc *Service, interceptors ...connect.Interceptor) http.Handler {
	opts := []connect.HandlerOption{
		connect.WithCodec(wire.Codec{}),
	}
	if len(interceptors) > 0 {
		opts = append(opts, connect.WithInterceptors(interceptors...))
	}

	mux := http.NewServeMux()

	mux.Handle(ProcedureAppend, connectUnaryHandler(ProcedureAppend, svc.Append, opts...))
	mux.Handle(ProcedureReadStream, connectUnaryHandler(ProcedureReadStream, svc.ReadStream, opts...))

	subscribePath, subscribeHandler := connect.NewServerStreamHandler(
		ProcedureSubscribe,
		func(ctx context.Context, req *connect.Request[wire.SubscribeRequest], stream *connect.ServerStream[wire.SubscribeResponse]) error {
			return svc.Subscribe(ctx, req.Msg, func(resp *wire.SubscribeResponse) error {
				return stream.Send(resp)
			})
		},
		opts...,
	)
	mux.Handle(subscribePath, subscribeHandler)

	return mux
}

func connectUnaryHandler[Req, Resp any](procedure string, fn func(context.Context, *Req) (*Resp, error), opts ...connect.HandlerOption) http.Handler {
	_, handler := connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Resp], error) {
			resp, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(resp), nil
		},
		opts...,
	)
	return handler
}
