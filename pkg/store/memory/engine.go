// Package memory implements the store.EventStore engine contract entirely
// in process memory: no persistence across restarts, intended for tests and
// local development.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
)

type streamKey struct {
	tenantID    string
	aggregateID string
}

type idempotencyKey struct {
	tenantID    string
	aggregateID string
	key         string
}

type idempotencyRecord struct {
	fingerprint string
	result      domain.AppendResult
}

// Engine is an in-memory store.EventStore. The zero value is not usable;
// construct with New.
type Engine struct {
	mu sync.RWMutex

	streams     map[streamKey][]domain.Event
	all         []domain.Event
	nextGlobal  uint64
	idempotency map[idempotencyKey]idempotencyRecord

	subscribers map[*subscriber]struct{}

	clock func() time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's source of RecordedAt timestamps; tests
// use this for deterministic ordering assertions.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		streams:     make(map[streamKey][]domain.Event),
		idempotency: make(map[idempotencyKey]idempotencyRecord),
		subscribers: make(map[*subscriber]struct{}),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Append(_ context.Context, req domain.AppendRequest) (domain.AppendResult, error) {
	// Fingerprint before normalization fills in event IDs, on a copy of the
	// events so the caller's slice is left as it was passed.
	req.Events = append([]domain.AppendEvent(nil), req.Events...)
	fp := domain.BatchFingerprint(&req)
	if err := domain.NormalizeAppendRequest(&req); err != nil {
		return domain.AppendResult{}, err
	}

	sKey := streamKey{tenantID: req.TenantID, aggregateID: req.AggregateID}

	e.mu.Lock()
	defer e.mu.Unlock()

	if req.IdempotencyKey != "" {
		iKey := idempotencyKey{tenantID: req.TenantID, aggregateID: req.AggregateID, key: req.IdempotencyKey}
		if rec, ok := e.idempotency[iKey]; ok {
			if rec.fingerprint != fp {
				return domain.AppendResult{}, domain.NewAlreadyExists(
					"idempotency_key %q was already used for a different batch on aggregate %s",
					req.IdempotencyKey, req.AggregateID)
			}
			return rec.result, nil
		}
	}

	existing := e.streams[sKey]
	lastNonce := uint64(0)
	lastGlobalNonce := uint64(0)
	if len(existing) > 0 {
		lastNonce = existing[len(existing)-1].AggregateNonce
		lastGlobalNonce = existing[len(existing)-1].GlobalNonce
	}
	if req.ExpectedAggregateNonce != lastNonce {
		return domain.AppendResult{}, domain.NewConcurrencyError(req.TenantID, req.AggregateID, req.ExpectedAggregateNonce, lastNonce, lastGlobalNonce)
	}

	now := e.clock()
	committed := make([]domain.Event, 0, len(req.Events))
	for i, ev := range req.Events {
		e.nextGlobal++
		committed = append(committed, domain.Event{
			TenantID:       req.TenantID,
			AggregateID:    req.AggregateID,
			AggregateType:  req.AggregateType,
			EventType:      ev.EventType,
			EventID:        ev.EventID,
			AggregateNonce: lastNonce + uint64(i) + 1,
			GlobalNonce:    e.nextGlobal,
			RecordedAt:     now,
			Data:           ev.Data,
			Metadata:       ev.Metadata,
		})
	}

	e.streams[sKey] = append(existing, committed...)
	e.all = append(e.all, committed...)

	result := domain.AppendResult{
		LastAggregateNonce: committed[len(committed)-1].AggregateNonce,
		GlobalNonce:        committed[len(committed)-1].GlobalNonce,
		Events:             committed,
	}

	if req.IdempotencyKey != "" {
		iKey := idempotencyKey{tenantID: req.TenantID, aggregateID: req.AggregateID, key: req.IdempotencyKey}
		e.idempotency[iKey] = idempotencyRecord{fingerprint: fp, result: result}
	}

	// Broadcasting happens while still holding the lock so that a
	// concurrent Subscribe's snapshot-then-register step (see subscribe.go)
	// can never land between "committed" and "broadcast": it either sees
	// these events in its snapshot, or it registers before this broadcast
	// and receives them live. A slow or gone subscriber must never be able
	// to fail or roll back a write that already succeeded.
	e.broadcastLocked(committed)

	return result, nil
}

func (e *Engine) ReadStream(_ context.Context, req domain.ReadStreamRequest) (domain.ReadStreamResult, error) {
	if err := domain.ValidateTenantID(req.TenantID); err != nil {
		return domain.ReadStreamResult{}, err
	}
	if err := domain.ValidateAggregateID(req.AggregateID); err != nil {
		return domain.ReadStreamResult{}, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = 100
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	stream := e.streams[streamKey{tenantID: req.TenantID, aggregateID: req.AggregateID}]

	switch req.Direction {
	case domain.ReadForward:
		start := req.FromNonce
		if start == 0 {
			start = 1
		}
		var page []domain.Event
		for _, ev := range stream {
			if ev.AggregateNonce >= start {
				page = append(page, ev)
				if uint32(len(page)) >= limit {
					break
				}
			}
		}
		if len(page) == 0 {
			return domain.ReadStreamResult{NextFromAggregateNonce: maxU64(start, 1), IsEnd: true}, nil
		}
		last := page[len(page)-1]
		isEnd := len(stream) == 0 || last.AggregateNonce >= stream[len(stream)-1].AggregateNonce
		return domain.ReadStreamResult{
			Events:                 page,
			NextFromAggregateNonce: last.AggregateNonce + 1,
			IsEnd:                  isEnd,
		}, nil

	case domain.ReadBackward:
		start := req.FromNonce
		if start == 0 && len(stream) > 0 {
			start = stream[len(stream)-1].AggregateNonce
		}
		var page []domain.Event
		for i := len(stream) - 1; i >= 0; i-- {
			ev := stream[i]
			if ev.AggregateNonce <= start {
				page = append(page, ev)
				if uint32(len(page)) >= limit {
					break
				}
			}
		}
		if len(page) == 0 {
			return domain.ReadStreamResult{NextFromAggregateNonce: 0, IsEnd: true}, nil
		}
		last := page[len(page)-1]
		isEnd := last.AggregateNonce <= 1
		next := uint64(0)
		if last.AggregateNonce > 1 {
			next = last.AggregateNonce - 1
		}
		return domain.ReadStreamResult{
			Events:                 page,
			NextFromAggregateNonce: next,
			IsEnd:                  isEnd,
		}, nil

	default:
		return domain.ReadStreamResult{}, domain.NewInvalid("unknown read direction")
	}
}

func (e *Engine) Close() error { return nil }

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func matchesSubscription(ev domain.Event, tenantID, prefix string) bool {
	if ev.TenantID != tenantID {
		return false
	}
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(ev.AggregateID, prefix)
}
