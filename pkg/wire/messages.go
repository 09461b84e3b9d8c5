// Package wire defines the RPC surface's message types and their
// protobuf-binary-wire-format codec (see codec.go). The types here mirror
// spec.md's AppendRequest/AppendResponse/ReadStreamRequest/
// ReadStreamResponse/SubscribeRequest/SubscribeResponse/EventData/
// ConcurrencyErrorDetail shapes field-for-field; field numbers are fixed
// here and must never be renumbered once assigned, the same rule a real
// .proto file would enforce.
package wire

// EventData is the wire shape of one event, used both in AppendRequest
// (before commit) and in ReadStreamResponse/SubscribeResponse (after commit).
type EventData struct {
	EventType string            // 1
	EventID   string            // 2
	Data      []byte            // 3
	Metadata  map[string]string // 4

	// Server-assigned; unset (zero) on the way into Append.
	AggregateNonce uint64 // 5
	GlobalNonce    uint64 // 6
	RecordedAtUnixMilli int64 // 7
}

type AppendRequest struct {
	TenantID               string      // 1
	AggregateID            string      // 2
	AggregateType          string      // 3
	ExpectedAggregateNonce uint64      // 4
	IdempotencyKey         string      // 5
	Events                 []EventData // 6
}

type ConcurrencyErrorDetail struct {
	TenantID                 string // 1
	AggregateID              string // 2
	ExpectedNonce            uint64 // 3
	ActualLastAggregateNonce uint64 // 4
	ActualLastGlobalNonce    uint64 // 5
}

type AppendResponse struct {
	LastAggregateNonce uint64 // 1
	GlobalNonce        uint64 // 2
}

const (
	ReadDirectionForward  int32 = 0
	ReadDirectionBackward int32 = 1
)

type ReadStreamRequest struct {
	TenantID    string // 1
	AggregateID string // 2
	Direction   int32  // 3
	FromNonce   uint64 // 4
	Limit       uint32 // 5
}

type ReadStreamResponse struct {
	Events                 []EventData // 1
	NextFromAggregateNonce uint64      // 2
	IsEnd                  bool        // 3
}

type SubscribeRequest struct {
	TenantID          string // 1
	AggregateIDPrefix string // 2
	FromGlobalNonce   uint64 // 3
}

type SubscribeResponse struct {
	TenantID      string    // 1
	AggregateID   string    // 2
	AggregateType string    // 3
	Event         EventData // 4
}
