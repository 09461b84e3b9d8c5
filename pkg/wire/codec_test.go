package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plaenen/tenant-eventstore/pkg/wire"
)

func TestAppendRequestRoundTrip(t *testing.T) {
	req := &wire.AppendRequest{
		TenantID:               "tenant-1",
		AggregateID:            "agg-1",
		AggregateType:          "widget",
		ExpectedAggregateNonce: 3,
		IdempotencyKey:         "cmd-1",
		Events: []wire.EventData{
			{EventType: "created", EventID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Data: []byte(`{"a":1}`), Metadata: map[string]string{"k1": "v1", "k2": "v2"}},
			{EventType: "renamed", EventID: "01ARZ3NDEKTSV4RRFFQ69G5FAW", Data: []byte(`{"b":2}`)},
		},
	}

	encoded, err := req.Marshal()
	require.NoError(t, err)

	var decoded wire.AppendRequest
	require.NoError(t, decoded.Unmarshal(encoded))
	require.Equal(t, *req, decoded)
}

func TestReadStreamResponseRoundTrip(t *testing.T) {
	resp := &wire.ReadStreamResponse{
		Events: []wire.EventData{
			{EventType: "created", EventID: "e1", AggregateNonce: 1, GlobalNonce: 10, RecordedAtUnixMilli: 1234},
		},
		NextFromAggregateNonce: 2,
		IsEnd:                  true,
	}
	encoded, err := resp.Marshal()
	require.NoError(t, err)

	var decoded wire.ReadStreamResponse
	require.NoError(t, decoded.Unmarshal(encoded))
	require.Equal(t, *resp, decoded)
}

func TestConcurrencyErrorDetailRoundTrip(t *testing.T) {
	detail := &wire.ConcurrencyErrorDetail{TenantID: "tenant-1", AggregateID: "agg-1", ExpectedNonce: 5, ActualLastAggregateNonce: 9, ActualLastGlobalNonce: 42}
	encoded, err := detail.Marshal()
	require.NoError(t, err)

	var decoded wire.ConcurrencyErrorDetail
	require.NoError(t, decoded.Unmarshal(encoded))
	require.Equal(t, *detail, decoded)
}

func TestCodecRoundTripThroughInterface(t *testing.T) {
	var codec wire.Codec
	require.Equal(t, "proto", codec.Name())

	req := &wire.SubscribeRequest{TenantID: "t1", AggregateIDPrefix: "Order-", FromGlobalNonce: 42}
	encoded, err := codec.Marshal(req)
	require.NoError(t, err)

	var decoded wire.SubscribeRequest
	require.NoError(t, codec.Unmarshal(encoded, &decoded))
	require.Equal(t, *req, decoded)
}
