// Package store defines the engine contract every storage backend
// (in-memory, SQLite) implements identically, and the domain-level
// request/response types the RPC façade translates to and from wire
// messages.
package store

import (
	"context"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
)

// EventStore is the pluggable storage engine contract. Every method is
// tenant-scoped: callers always pass a tenant_id and no method ever lets
// one tenant observe another's data. Implementations must be safe for
// concurrent use by multiple goroutines.
type EventStore interface {
	// Append commits a batch of events to one aggregate. If req.IdempotencyKey
	// is non-empty and has been seen before for this tenant+aggregate with a
	// matching fingerprint, the previously committed result is returned
	// without appending again. A non-empty key seen before with a different
	// fingerprint is a domain.CodeAlreadyExists error. A nonce mismatch against
	// req.ExpectedAggregateNonce is a domain.CodeConcurrency error carrying
	// ConcurrencyErrorDetail.
	Append(ctx context.Context, req domain.AppendRequest) (domain.AppendResult, error)

	// ReadStream pages through one aggregate's history in req.Direction.
	ReadStream(ctx context.Context, req domain.ReadStreamRequest) (domain.ReadStreamResult, error)

	// Subscribe returns a channel that first replays every already-committed
	// event matching req (tenant, optional aggregate_id prefix, global_nonce
	// at or after req.FromGlobalNonce) and then continues to deliver newly
	// committed events as they are appended, until ctx is canceled or the
	// engine ends the subscription with a terminal error. The
	// returned error channel carries at most one terminal error; the event
	// channel is closed exactly once, after any error is sent.
	Subscribe(ctx context.Context, req domain.SubscribeRequest) (<-chan domain.Event, <-chan error)

	// Close releases any resources (connections, background goroutines) held
	// by the engine. Subsequent calls to other methods are not guaranteed to
	// work after Close returns.
	Close() error
}
