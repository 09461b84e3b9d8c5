package rpc_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/rpc"
	"github.com/plaenen/tenant-eventstore/pkg/store/memory"
	"github.com/plaenen/tenant-eventstore/pkg/wire"
)

func TestServiceAppendThenReadStream(t *testing.T) {
	svc := rpc.New(memory.New())
	ctx := context.Background()

	appendResp, err := svc.Append(ctx, &wire.AppendRequest{
		TenantID:      "tenant-a",
		AggregateID:   "agg-1",
		AggregateType: "demo.Counter",
		Events: []wire.EventData{
			{EventType: "demo.Incremented", EventID: "01JA000000000000000000001"},
			{EventType: "demo.Incremented", EventID: "01JA000000000000000000002"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), appendResp.LastAggregateNonce)

	readResp, err := svc.ReadStream(ctx, &wire.ReadStreamRequest{
		TenantID:    "tenant-a",
		AggregateID: "agg-1",
		Direction:   wire.ReadDirectionForward,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, readResp.Events, 2)
	require.True(t, readResp.IsEnd)
}

func TestServiceAppendRejectsWrongExpectedNonce(t *testing.T) {
	svc := rpc.New(memory.New())
	ctx := context.Background()

	_, err := svc.Append(ctx, &wire.AppendRequest{
		TenantID:               "tenant-a",
		AggregateID:            "agg-1",
		AggregateType:          "demo.Counter",
		ExpectedAggregateNonce: 5,
		Events:                 []wire.EventData{{EventType: "demo.Incremented", EventID: "01JA000000000000000000003"}},
	})
	require.Error(t, err)

	var connErr *connect.Error
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, connect.CodeAborted, connErr.Code())
}

func TestServiceSubscribeDeliversCommittedEvents(t *testing.T) {
	svc := rpc.New(memory.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := svc.Append(ctx, &wire.AppendRequest{
		TenantID:      "tenant-a",
		AggregateID:   "agg-1",
		AggregateType: "demo.Counter",
		Events:        []wire.EventData{{EventType: "demo.Incremented", EventID: "01JA000000000000000000004"}},
	})
	require.NoError(t, err)

	received := make(chan *wire.SubscribeResponse, 1)
	subCtx, subCancel := context.WithCancel(ctx)
	go func() {
		_ = svc.Subscribe(subCtx, &wire.SubscribeRequest{TenantID: "tenant-a"}, func(resp *wire.SubscribeResponse) error {
			select {
			case received <- resp:
			default:
			}
			subCancel()
			return nil
		})
	}()

	select {
	case resp := <-received:
		require.Equal(t, "agg-1", resp.AggregateID)
		require.Equal(t, "demo.Incremented", resp.Event.EventType)
	case <-ctx.Done():
		t.Fatal("timed out waiting for subscribed event")
	}
}
