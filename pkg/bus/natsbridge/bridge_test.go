package natsbridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/bus/natsbridge"
	"github.com/plaenen/tenant-eventstore/pkg/domain"
	"github.com/plaenen/tenant-eventstore/pkg/store/memory"
)

func TestBridgePublishesCommittedEventsAcrossInstances(t *testing.T) {
	srv, err := natsbridge.StartEmbeddedServer()
	require.NoError(t, err)
	defer srv.Shutdown()

	writerEngine := memory.New()
	writer, err := natsbridge.New(writerEngine, natsbridge.Config{URL: srv.URL()})
	require.NoError(t, err)
	defer writer.Close()

	readerEngine := memory.New()
	reader, err := natsbridge.New(readerEngine, natsbridge.Config{URL: srv.URL()})
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, errs := reader.Subscribe(ctx, domain.SubscribeRequest{TenantID: "tenant-a"})

	// Give the NATS subscription time to register before publishing.
	time.Sleep(100 * time.Millisecond)

	_, err = writer.Append(ctx, domain.AppendRequest{
		TenantID:      "tenant-a",
		AggregateID:   "agg-1",
		AggregateType: "Account",
		Events: []domain.AppendEvent{
			{EventType: "account.Opened", Data: []byte(`{}`)},
		},
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, "tenant-a", ev.TenantID)
		require.Equal(t, "agg-1", ev.AggregateID)
		require.Equal(t, "account.Opened", ev.EventType)
	case err := <-errs:
		t.Fatalf("subscribe error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for bridged event")
	}
}

func TestBridgeSubscribeFiltersByTenant(t *testing.T) {
	srv, err := natsbridge.StartEmbeddedServer()
	require.NoError(t, err)
	defer srv.Shutdown()

	writerEngine := memory.New()
	writer, err := natsbridge.New(writerEngine, natsbridge.Config{URL: srv.URL()})
	require.NoError(t, err)
	defer writer.Close()

	readerEngine := memory.New()
	reader, err := natsbridge.New(readerEngine, natsbridge.Config{URL: srv.URL()})
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, _ := reader.Subscribe(ctx, domain.SubscribeRequest{TenantID: "tenant-a"})
	time.Sleep(100 * time.Millisecond)

	_, err = writer.Append(ctx, domain.AppendRequest{
		TenantID:      "tenant-b",
		AggregateID:   "agg-1",
		AggregateType: "Account",
		Events: []domain.AppendEvent{
			{EventType: "account.Opened", Data: []byte(`{}`)},
		},
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		t.Fatalf("expected no event for tenant-a, got event for tenant %s", ev.TenantID)
	case <-time.After(300 * time.Millisecond):
		// Expected: tenant-b's event never reaches a tenant-a subscriber.
	}
}
