// Package natsbridge extends a single process's in-memory fan-out across a
// NATS deployment: every event a wrapped store.EventStore commits is
// republished onto a per-tenant/per-aggregate subject, so a Subscribe call
// against a different service instance still observes the same live tail.
//
// The bridge is a pure decorator around store.EventStore — it adds no state
// of its own beyond the NATS connection, and the wrapped engine never knows
// NATS exists.
package natsbridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
	"github.com/plaenen/tenant-eventstore/pkg/store"
	"github.com/plaenen/tenant-eventstore/pkg/wire"
)

// Config configures the bridge's NATS connection.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string

	// SubjectPrefix namespaces subjects so multiple event stores can share
	// one NATS deployment without colliding. Defaults to "eventstore".
	SubjectPrefix string

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "eventstore"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// Bridge wraps a store.EventStore, republishing every committed event to
// NATS and serving Subscribe from NATS instead of the wrapped engine's
// in-process channel, so subscribers see events committed by any instance
// sharing this NATS deployment.
type Bridge struct {
	inner  store.EventStore
	nc     *nats.Conn
	prefix string
}

// New connects to NATS and returns a Bridge wrapping inner. Callers should
// use the returned Bridge in place of inner everywhere.
func New(inner store.EventStore, cfg Config) (*Bridge, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL,
		nats.Name("tenant-eventstore"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connect: %w", err)
	}

	return &Bridge{inner: inner, nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Append commits through the wrapped engine, then republishes every
// committed event. A publish failure does not roll back or fail the
// append: the write already succeeded at the engine, and a missed
// republish only affects cross-process subscribers, who can still recover
// via ReadStream/catch-up against the engine of record.
func (b *Bridge) Append(ctx context.Context, req domain.AppendRequest) (domain.AppendResult, error) {
	result, err := b.inner.Append(ctx, req)
	if err != nil {
		return result, err
	}
	for _, ev := range result.Events {
		b.publish(ev)
	}
	return result, nil
}

// ReadStream is unaffected by the bridge; history always comes from the
// engine of record.
func (b *Bridge) ReadStream(ctx context.Context, req domain.ReadStreamRequest) (domain.ReadStreamResult, error) {
	return b.inner.ReadStream(ctx, req)
}

// Subscribe catches up against the wrapped engine, then switches to NATS
// for the live tail so events committed on any instance sharing this NATS
// deployment are observed, not just events committed locally.
func (b *Bridge) Subscribe(ctx context.Context, req domain.SubscribeRequest) (<-chan domain.Event, <-chan error) {
	out := make(chan domain.Event, 256)
	errs := make(chan error, 1)

	catchUp, catchUpErrs := b.inner.Subscribe(ctx, req)

	go func() {
		defer close(out)

		subject := subjectFilter(b.prefix, req.TenantID)
		msgs := make(chan *nats.Msg, 256)
		sub, err := b.nc.ChanSubscribe(subject, msgs)
		if err != nil {
			select {
			case errs <- fmt.Errorf("natsbridge: subscribe %s: %w", subject, err):
			default:
			}
			return
		}
		defer sub.Unsubscribe()

		for {
			select {
			case ev, ok := <-catchUp:
				if !ok {
					catchUp = nil
					continue
				}
				if !forward(ctx, out, ev) {
					return
				}
			case err, ok := <-catchUpErrs:
				if ok && err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
			case m, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEnvelope(m.Data)
				if err != nil {
					continue
				}
				if !matchesSubscription(req, ev) {
					continue
				}
				if req.FromGlobalNonce != 0 && ev.GlobalNonce < req.FromGlobalNonce {
					continue
				}
				if !forward(ctx, out, ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// Close shuts down the NATS connection and the wrapped engine.
func (b *Bridge) Close() error {
	b.nc.Close()
	return b.inner.Close()
}

func forward(ctx context.Context, out chan<- domain.Event, ev domain.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func matchesSubscription(req domain.SubscribeRequest, ev domain.Event) bool {
	if req.TenantID != "" && ev.TenantID != req.TenantID {
		return false
	}
	if req.AggregateIDPrefix != "" && !strings.HasPrefix(ev.AggregateID, req.AggregateIDPrefix) {
		return false
	}
	return true
}

func (b *Bridge) publish(ev domain.Event) {
	subject := subjectFor(b.prefix, ev.TenantID, ev.AggregateID)
	payload := encodeEnvelope(ev)
	// Best-effort: publish errors are swallowed per the Append doc comment.
	_ = b.nc.Publish(subject, payload)
}

// encodeEnvelope/decodeEnvelope reuse the RPC SubscribeResponse wire shape
// as the NATS message body, so a bridged event is byte-for-byte what a
// directly-connected Subscribe caller would have received.
func encodeEnvelope(ev domain.Event) []byte {
	resp := wire.SubscribeResponse{
		TenantID:      ev.TenantID,
		AggregateID:   ev.AggregateID,
		AggregateType: ev.AggregateType,
		Event: wire.EventData{
			EventType:           ev.EventType,
			EventID:             ev.EventID,
			Data:                ev.Data,
			Metadata:            ev.Metadata,
			AggregateNonce:      ev.AggregateNonce,
			GlobalNonce:         ev.GlobalNonce,
			RecordedAtUnixMilli: ev.RecordedAt.UnixMilli(),
		},
	}
	// A SubscribeResponse built from an already-committed Event can never
	// fail to marshal.
	b, _ := resp.Marshal()
	return b
}

func decodeEnvelope(data []byte) (domain.Event, error) {
	var resp wire.SubscribeResponse
	if err := resp.Unmarshal(data); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		TenantID:       resp.TenantID,
		AggregateID:    resp.AggregateID,
		AggregateType:  resp.AggregateType,
		EventType:      resp.Event.EventType,
		EventID:        resp.Event.EventID,
		AggregateNonce: resp.Event.AggregateNonce,
		GlobalNonce:    resp.Event.GlobalNonce,
		RecordedAt:     time.UnixMilli(resp.Event.RecordedAtUnixMilli),
		Data:           resp.Event.Data,
		Metadata:       resp.Event.Metadata,
	}, nil
}

// subjectFor builds the publish-side subject for one event:
// "<prefix>.<tenant_id>.<aggregate_id>".
func subjectFor(prefix, tenantID, aggregateID string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, sanitizeToken(tenantID), sanitizeToken(aggregateID))
}

// subjectFilter builds the subscribe-side wildcard: a specific tenant's
// events if req.TenantID is set, otherwise every tenant.
func subjectFilter(prefix, tenantID string) string {
	if tenantID == "" {
		return fmt.Sprintf("%s.>", prefix)
	}
	return fmt.Sprintf("%s.%s.>", prefix, sanitizeToken(tenantID))
}

// sanitizeToken replaces NATS subject token separators so tenant/aggregate
// IDs can never be mistaken for subject structure.
func sanitizeToken(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "*", "_")
	s = strings.ReplaceAll(s, ">", "_")
	return s
}
