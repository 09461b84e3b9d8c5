// Package rpc is the façade between the wire message types (pkg/wire) and
// the storage engine contract (pkg/store): it decodes a wire request into a
// domain request, calls the engine, and encodes the domain result back into
// a wire response, translating domain.StoreError into connect.Code and
// connect.Error metadata along the way.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"connectrpc.com/connect"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
	"github.com/plaenen/tenant-eventstore/pkg/observability"
	"github.com/plaenen/tenant-eventstore/pkg/store"
	"github.com/plaenen/tenant-eventstore/pkg/wire"
)

// Service implements the event store's RPC surface against a single
// store.EventStore. It holds no state of its own.
type Service struct {
	Engine store.EventStore
}

func New(engine store.EventStore) *Service {
	return &Service{Engine: engine}
}

func (s *Service) Append(ctx context.Context, req *wire.AppendRequest) (*wire.AppendResponse, error) {
	domainReq := domain.AppendRequest{
		TenantID:               req.TenantID,
		AggregateID:            req.AggregateID,
		AggregateType:          req.AggregateType,
		ExpectedAggregateNonce: req.ExpectedAggregateNonce,
		IdempotencyKey:         req.IdempotencyKey,
	}
	for _, ev := range req.Events {
		domainReq.Events = append(domainReq.Events, domain.AppendEvent{
			EventType: ev.EventType,
			EventID:   ev.EventID,
			Data:      ev.Data,
			Metadata:  ev.Metadata,
		})
	}

	observability.SetSpanAttributes(ctx, observability.TenantAttrs(req.TenantID)...)
	observability.SetSpanAttributes(ctx, observability.AttrOperation.String("append"))
	observability.SetSpanAttributes(ctx, observability.AttrEventCount.Int(len(domainReq.Events)))

	result, err := s.Engine.Append(ctx, domainReq)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	observability.SetSpanAttributes(ctx, observability.AggregateAttrs(req.AggregateID, req.AggregateType, result.LastAggregateNonce)...)

	return &wire.AppendResponse{
		LastAggregateNonce: result.LastAggregateNonce,
		GlobalNonce:        result.GlobalNonce,
	}, nil
}

func (s *Service) ReadStream(ctx context.Context, req *wire.ReadStreamRequest) (*wire.ReadStreamResponse, error) {
	direction := domain.ReadForward
	if req.Direction == wire.ReadDirectionBackward {
		direction = domain.ReadBackward
	}

	observability.SetSpanAttributes(ctx, observability.TenantAttrs(req.TenantID)...)
	observability.SetSpanAttributes(ctx,
		observability.AttrAggregateID.String(req.AggregateID),
		observability.AttrOperation.String("read_stream"),
	)

	result, err := s.Engine.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID:    req.TenantID,
		AggregateID: req.AggregateID,
		Direction:   direction,
		FromNonce:   req.FromNonce,
		Limit:       req.Limit,
	})
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	observability.SetSpanAttributes(ctx, observability.AttrEventCount.Int(len(result.Events)))

	resp := &wire.ReadStreamResponse{
		NextFromAggregateNonce: result.NextFromAggregateNonce,
		IsEnd:                  result.IsEnd,
	}
	for _, ev := range result.Events {
		resp.Events = append(resp.Events, eventToWire(ev))
	}
	return resp, nil
}

// Subscribe streams matching events to send until the engine's feed ends
// (ctx canceled) or it returns a terminal error.
func (s *Service) Subscribe(ctx context.Context, req *wire.SubscribeRequest, send func(*wire.SubscribeResponse) error) error {
	observability.SetSpanAttributes(ctx, observability.TenantAttrs(req.TenantID)...)
	observability.SetSpanAttributes(ctx, observability.AttrOperation.String("subscribe"))

	events, errs := s.Engine.Subscribe(ctx, domain.SubscribeRequest{
		TenantID:          req.TenantID,
		AggregateIDPrefix: req.AggregateIDPrefix,
		FromGlobalNonce:   req.FromGlobalNonce,
	})

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				select {
				case err := <-errs:
					if err != nil {
						return toConnectError(ctx, err)
					}
				default:
				}
				return nil
			}
			resp := &wire.SubscribeResponse{
				TenantID:      ev.TenantID,
				AggregateID:   ev.AggregateID,
				AggregateType: ev.AggregateType,
				Event:         eventToWire(ev),
			}
			observability.AddSpanEvent(ctx, "event_delivered", observability.EventAttrs(ev.EventType, ev.EventID)...)
			if err := send(resp); err != nil {
				return err
			}
		case err := <-errs:
			if err != nil {
				return toConnectError(ctx, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func eventToWire(ev domain.Event) wire.EventData {
	return wire.EventData{
		EventType:           ev.EventType,
		EventID:             ev.EventID,
		Data:                ev.Data,
		Metadata:            ev.Metadata,
		AggregateNonce:      ev.AggregateNonce,
		GlobalNonce:         ev.GlobalNonce,
		RecordedAtUnixMilli: ev.RecordedAt.UnixMilli(),
	}
}

// toConnectError maps the closed domain.StoreError taxonomy onto
// connect.Code 1:1, and records the failure on the current span. A
// concurrency error's detail is carried as error metadata (headers) rather
// than a structured proto.Any error detail, since these wire messages are
// hand-written structs without the proto.Message reflection connect's
// ErrorDetail machinery requires.
func toConnectError(ctx context.Context, err error) error {
	var se *domain.StoreError
	if !errors.As(err, &se) {
		observability.SetSpanError(ctx, err)
		return connect.NewError(connect.CodeInternal, err)
	}

	code := connect.CodeInternal
	switch se.Code {
	case domain.CodeNotFound:
		code = connect.CodeNotFound
	case domain.CodeConcurrency:
		code = connect.CodeAborted
	case domain.CodeInvalid:
		code = connect.CodeInvalidArgument
	case domain.CodeAlreadyExists:
		code = connect.CodeAlreadyExists
	case domain.CodePermissionDenied:
		code = connect.CodePermissionDenied
	case domain.CodeUnauthenticated:
		code = connect.CodeUnauthenticated
	case domain.CodeResourceExhausted:
		code = connect.CodeResourceExhausted
	case domain.CodeInternal:
		code = connect.CodeInternal
	}

	observability.SetSpanError(ctx, err)
	observability.SetSpanAttributes(ctx, observability.ErrorAttrs(err, string(se.Code))...)

	connErr := connect.NewError(code, fmt.Errorf("%s", se.Message))
	if se.Detail != nil {
		connErr.Meta().Set("Eventstore-Tenant-Id", se.Detail.TenantID)
		connErr.Meta().Set("Eventstore-Aggregate-Id", se.Detail.AggregateID)
		connErr.Meta().Set("Eventstore-Expected-Nonce", strconv.FormatUint(se.Detail.ExpectedNonce, 10))
		connErr.Meta().Set("Eventstore-Actual-Last-Aggregate-Nonce", strconv.FormatUint(se.Detail.ActualLastAggregateNonce, 10))
		connErr.Meta().Set("Eventstore-Actual-Last-Global-Nonce", strconv.FormatUint(se.Detail.ActualLastGlobalNonce, 10))
	}
	return connErr
}
