package memory

import (
	"context"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
)

// subscriberBufferSize bounds how far a live subscriber may lag behind the
// writer before it is evicted. A subscriber that can't keep up gets a
// ResourceExhausted error rather than being allowed to apply backpressure
// to Append.
const subscriberBufferSize = 1024

type subscriber struct {
	tenantID string
	prefix   string
	ch       chan domain.Event
	evicted  chan struct{}
}

// broadcastLocked fans committed events out to every matching live
// subscriber. Callers must hold e.mu (write lock). A subscriber whose
// buffer is full is evicted rather than allowed to block the writer.
func (e *Engine) broadcastLocked(events []domain.Event) {
	for sub := range e.subscribers {
	deliver:
		for _, ev := range events {
			if !matchesSubscription(ev, sub.tenantID, sub.prefix) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				delete(e.subscribers, sub)
				close(sub.evicted)
				break deliver
			}
		}
	}
}

// Subscribe replays every event already committed that matches req, starting
// at global_nonce req.FromGlobalNonce, then continues delivering newly
// committed matching events until ctx is done or the engine evicts a lagging
// subscriber. Close does not end a subscription.
//
// The snapshot read and the live-subscriber registration happen under the
// same write-lock critical section as Append's broadcast, so no event can
// be committed in the gap between "read the snapshot" and "start receiving
// live broadcasts" — the race present in an earlier prototype of this
// engine that this implementation deliberately closes.
func (e *Engine) Subscribe(ctx context.Context, req domain.SubscribeRequest) (<-chan domain.Event, <-chan error) {
	out := make(chan domain.Event)
	errCh := make(chan error, 1)

	if err := domain.ValidateTenantID(req.TenantID); err != nil {
		errCh <- err
		close(out)
		return out, errCh
	}

	sub := &subscriber{
		tenantID: req.TenantID,
		prefix:   req.AggregateIDPrefix,
		ch:       make(chan domain.Event, subscriberBufferSize),
		evicted:  make(chan struct{}),
	}

	e.mu.Lock()
	var snapshot []domain.Event
	for _, ev := range e.all {
		if ev.GlobalNonce < req.FromGlobalNonce {
			continue
		}
		if matchesSubscription(ev, req.TenantID, req.AggregateIDPrefix) {
			snapshot = append(snapshot, ev)
		}
	}
	var lastSeen uint64
	if req.FromGlobalNonce > 0 {
		lastSeen = req.FromGlobalNonce - 1
	}
	if len(snapshot) > 0 {
		lastSeen = snapshot[len(snapshot)-1].GlobalNonce
	}
	e.subscribers[sub] = struct{}{}
	e.mu.Unlock()

	go func() {
		defer close(out)

		for _, ev := range snapshot {
			select {
			case out <- ev:
			case <-ctx.Done():
				e.unsubscribe(sub)
				return
			}
		}

		for {
			select {
			case ev := <-sub.ch:
				// The global log is append-only and strictly ordered, but a
				// subscriber's snapshot and its live feed are populated from
				// two different reads; skip anything the snapshot already
				// delivered instead of risking a duplicate.
				if ev.GlobalNonce <= lastSeen {
					continue
				}
				lastSeen = ev.GlobalNonce
				select {
				case out <- ev:
				case <-ctx.Done():
					e.unsubscribe(sub)
					return
				}
			case <-sub.evicted:
				errCh <- domain.NewResourceExhausted("subscriber for tenant %s fell too far behind and was disconnected", req.TenantID)
				return
			case <-ctx.Done():
				e.unsubscribe(sub)
				return
			}
		}
	}()

	return out, errCh
}

func (e *Engine) unsubscribe(sub *subscriber) {
	e.mu.Lock()
	delete(e.subscribers, sub)
	e.mu.Unlock()
}
