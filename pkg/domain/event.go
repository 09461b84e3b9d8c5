// Package domain holds the types every storage engine and the RPC façade
// share: the committed event record, the closed error taxonomy, and the
// normalization/fingerprint/id-validation helpers the engine contract
// requires every implementation to apply identically.
package domain

import "time"

// Event is a single committed, immutable fact belonging to one aggregate
// within one tenant. Engines never mutate an Event after Append returns it;
// ReadStream and Subscribe hand out copies.
type Event struct {
	TenantID       string
	AggregateID    string
	AggregateType  string
	EventType      string
	EventID        string
	AggregateNonce uint64
	GlobalNonce    uint64
	RecordedAt     time.Time
	Data           []byte
	Metadata       map[string]string
}

// AppendEvent is one event as supplied by a caller, before the engine
// assigns AggregateNonce/GlobalNonce/RecordedAt. EventID may be supplied by
// the caller; normalize.go fills it in with a ULID when absent.
type AppendEvent struct {
	EventType string
	EventID   string
	Data      []byte
	Metadata  map[string]string
}

// AppendRequest is one idempotent batch write against a single aggregate.
// ExpectedAggregateNonce == 0 means "this aggregate must not already exist."
type AppendRequest struct {
	TenantID               string
	AggregateID            string
	AggregateType          string
	ExpectedAggregateNonce uint64
	IdempotencyKey         string
	Events                 []AppendEvent
}

// AppendResult is what an engine returns for a successful Append call.
type AppendResult struct {
	LastAggregateNonce uint64
	GlobalNonce        uint64
	Events             []Event
}

// ReadDirection controls which way ReadStream walks an aggregate's history.
type ReadDirection int

const (
	ReadForward ReadDirection = iota
	ReadBackward
)

// ReadStreamRequest pages through one aggregate's events in a single direction.
// FromNonce == 0 means "start of the stream" in the chosen direction.
type ReadStreamRequest struct {
	TenantID    string
	AggregateID string
	Direction   ReadDirection
	FromNonce   uint64
	Limit       uint32
}

// ReadStreamResult is one page of a ReadStream walk.
type ReadStreamResult struct {
	Events                 []Event
	NextFromAggregateNonce uint64
	IsEnd                  bool
}

// SubscribeRequest asks an engine for a catch-up-then-live feed of every
// event recorded for a tenant, optionally narrowed to aggregates whose
// aggregate_id starts with a prefix, starting at a given point in the global
// log: events with GlobalNonce >= FromGlobalNonce are delivered, so 0 and 1
// both mean "from the beginning".
type SubscribeRequest struct {
	TenantID          string
	AggregateIDPrefix string
	FromGlobalNonce   uint64
}

// DefaultIdempotencyTTL is a seven-day duration for idempotency records. No
// engine in this module applies it: both keep every idempotency record for
// as long as the engine holds the aggregate.
const DefaultIdempotencyTTL = 7 * 24 * time.Hour
