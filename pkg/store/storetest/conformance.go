// Package storetest is a conformance suite run against every
// store.EventStore implementation, so a new engine is exercised against
// exactly the same invariants as the reference in-memory one.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
	"github.com/plaenen/tenant-eventstore/pkg/store"
)

// Factory builds a fresh, empty engine for one sub-test. Implementations
// that hold external resources (a temp file, a connection) should register
// cleanup on tb themselves.
type Factory func(tb testing.TB) store.EventStore

// Run executes every conformance case against the engine newEngine(tb) returns.
func Run(t *testing.T, newEngine Factory) {
	t.Run("AppendAssignsSequentialNonces", func(t *testing.T) { testAppendAssignsSequentialNonces(t, newEngine) })
	t.Run("AppendRejectsNonceMismatch", func(t *testing.T) { testAppendRejectsNonceMismatch(t, newEngine) })
	t.Run("AppendRequiresExpectedZeroForNewAggregate", func(t *testing.T) { testAppendRequiresExpectedZeroForNewAggregate(t, newEngine) })
	t.Run("AppendIdempotentReplayReturnsSameResult", func(t *testing.T) { testAppendIdempotentReplay(t, newEngine) })
	t.Run("AppendIdempotentKeyReuseWithDifferentBatchFails", func(t *testing.T) { testAppendIdempotentKeyReuseFails(t, newEngine) })
	t.Run("ReadStreamForwardPaginates", func(t *testing.T) { testReadStreamForwardPaginates(t, newEngine) })
	t.Run("ReadStreamBackwardPaginates", func(t *testing.T) { testReadStreamBackwardPaginates(t, newEngine) })
	t.Run("ReadStreamEmptyAggregate", func(t *testing.T) { testReadStreamEmptyAggregate(t, newEngine) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, newEngine) })
	t.Run("SubscribeCatchesUpThenGoesLive", func(t *testing.T) { testSubscribeCatchUpThenLive(t, newEngine) })
	t.Run("SubscribeFiltersByAggregateIDPrefix", func(t *testing.T) { testSubscribeFiltersByPrefix(t, newEngine) })
}

func mkEvent(eventType string) domain.AppendEvent {
	return domain.AppendEvent{EventType: eventType, Data: []byte(`{}`)}
}

func testAppendAssignsSequentialNonces(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	res, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0,
		Events:                 []domain.AppendEvent{mkEvent("created"), mkEvent("renamed")},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), res.LastAggregateNonce)
	require.Equal(t, uint64(1), res.Events[0].AggregateNonce)
	require.Equal(t, uint64(2), res.Events[1].AggregateNonce)

	res2, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 2,
		Events:                 []domain.AppendEvent{mkEvent("renamed")},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), res2.LastAggregateNonce)
}

func testAppendRejectsNonceMismatch(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0, Events: []domain.AppendEvent{mkEvent("created")},
	})
	require.NoError(t, err)

	_, err = eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 5, Events: []domain.AppendEvent{mkEvent("renamed")},
	})
	require.Error(t, err)
	require.True(t, domain.IsCode(err, domain.CodeConcurrency))
	var se *domain.StoreError
	require.ErrorAs(t, err, &se)
	require.NotNil(t, se.Detail)
	require.Equal(t, uint64(1), se.Detail.ActualLastAggregateNonce)
	require.Equal(t, uint64(1), se.Detail.ActualLastGlobalNonce)
	require.Equal(t, "t1", se.Detail.TenantID)
}

func testAppendRequiresExpectedZeroForNewAggregate(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "new-agg", AggregateType: "widget",
		ExpectedAggregateNonce: 3, Events: []domain.AppendEvent{mkEvent("created")},
	})
	require.Error(t, err)
	require.True(t, domain.IsCode(err, domain.CodeConcurrency))
}

func testAppendIdempotentReplay(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	req := domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0, IdempotencyKey: "cmd-1",
		Events: []domain.AppendEvent{mkEvent("created")},
	}
	res1, err := eng.Append(ctx, req)
	require.NoError(t, err)

	res2, err := eng.Append(ctx, req)
	require.NoError(t, err)
	require.Equal(t, res1.LastAggregateNonce, res2.LastAggregateNonce)
	require.Equal(t, res1.GlobalNonce, res2.GlobalNonce)

	// replay must not have appended a second time
	stream, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "t1", AggregateID: "a1", Direction: domain.ReadForward,
	})
	require.NoError(t, err)
	require.Len(t, stream.Events, 1)
}

func testAppendIdempotentKeyReuseFails(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0, IdempotencyKey: "cmd-1",
		Events: []domain.AppendEvent{mkEvent("created")},
	})
	require.NoError(t, err)

	_, err = eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 1, IdempotencyKey: "cmd-1",
		Events: []domain.AppendEvent{mkEvent("renamed")},
	})
	require.Error(t, err)
	require.True(t, domain.IsCode(err, domain.CodeAlreadyExists))
}

func testReadStreamForwardPaginates(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0,
		Events: []domain.AppendEvent{mkEvent("e1"), mkEvent("e2"), mkEvent("e3"), mkEvent("e4")},
	})
	require.NoError(t, err)

	page1, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "t1", AggregateID: "a1", Direction: domain.ReadForward, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, page1.Events, 2)
	require.False(t, page1.IsEnd)
	require.Equal(t, uint64(3), page1.NextFromAggregateNonce)

	page2, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "t1", AggregateID: "a1", Direction: domain.ReadForward,
		FromNonce: page1.NextFromAggregateNonce, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, page2.Events, 2)
	require.True(t, page2.IsEnd)
}

func testReadStreamBackwardPaginates(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0,
		Events: []domain.AppendEvent{mkEvent("e1"), mkEvent("e2"), mkEvent("e3")},
	})
	require.NoError(t, err)

	page, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "t1", AggregateID: "a1", Direction: domain.ReadBackward, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.Equal(t, uint64(3), page.Events[0].AggregateNonce)
	require.Equal(t, uint64(2), page.Events[1].AggregateNonce)
	require.False(t, page.IsEnd)
	require.Equal(t, uint64(1), page.NextFromAggregateNonce)
}

func testReadStreamEmptyAggregate(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	fwd, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "t1", AggregateID: "ghost", Direction: domain.ReadForward,
	})
	require.NoError(t, err)
	require.True(t, fwd.IsEnd)
	require.Equal(t, uint64(1), fwd.NextFromAggregateNonce)

	bwd, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "t1", AggregateID: "ghost", Direction: domain.ReadBackward,
	})
	require.NoError(t, err)
	require.True(t, bwd.IsEnd)
	require.Equal(t, uint64(0), bwd.NextFromAggregateNonce)
}

func testTenantIsolation(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "tenant-a", AggregateID: "shared-id", AggregateType: "widget",
		ExpectedAggregateNonce: 0, Events: []domain.AppendEvent{mkEvent("created")},
	})
	require.NoError(t, err)

	// tenant-b has never written "shared-id"; it must look brand new to them.
	_, err = eng.Append(ctx, domain.AppendRequest{
		TenantID: "tenant-b", AggregateID: "shared-id", AggregateType: "widget",
		ExpectedAggregateNonce: 0, Events: []domain.AppendEvent{mkEvent("created")},
	})
	require.NoError(t, err)

	streamA, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "tenant-a", AggregateID: "shared-id", Direction: domain.ReadForward,
	})
	require.NoError(t, err)
	require.Len(t, streamA.Events, 1)

	streamB, err := eng.ReadStream(ctx, domain.ReadStreamRequest{
		TenantID: "tenant-b", AggregateID: "shared-id", Direction: domain.ReadForward,
	})
	require.NoError(t, err)
	require.Len(t, streamB.Events, 1)
}

func testSubscribeCatchUpThenLive(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
		ExpectedAggregateNonce: 0, Events: []domain.AppendEvent{mkEvent("before-sub")},
	})
	require.NoError(t, err)

	events, errs := eng.Subscribe(ctx, domain.SubscribeRequest{TenantID: "t1"})

	select {
	case ev := <-events:
		require.Equal(t, "before-sub", ev.EventType)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for catch-up event")
	}

	go func() {
		_, _ = eng.Append(ctx, domain.AppendRequest{
			TenantID: "t1", AggregateID: "a1", AggregateType: "widget",
			ExpectedAggregateNonce: 1, Events: []domain.AppendEvent{mkEvent("after-sub")},
		})
	}()

	select {
	case ev := <-events:
		require.Equal(t, "after-sub", ev.EventType)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for live event")
	}
}

func testSubscribeFiltersByPrefix(t *testing.T, newEngine Factory) {
	eng := newEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "Order-9", AggregateType: "order",
		ExpectedAggregateNonce: 0, Events: []domain.AppendEvent{mkEvent("e1")},
	})
	require.NoError(t, err)
	_, err = eng.Append(ctx, domain.AppendRequest{
		TenantID: "t1", AggregateID: "Payment-1", AggregateType: "order",
		ExpectedAggregateNonce: 0, Events: []domain.AppendEvent{mkEvent("e2")},
	})
	require.NoError(t, err)

	events, errs := eng.Subscribe(ctx, domain.SubscribeRequest{TenantID: "t1", AggregateIDPrefix: "Order-"})

	select {
	case ev := <-events:
		require.Equal(t, "Order-9", ev.AggregateID)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for filtered catch-up event")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected event delivered past the filtered aggregate: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
