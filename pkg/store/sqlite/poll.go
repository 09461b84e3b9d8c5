package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
)

// pollInterval is how often Subscribe re-queries the events table for new
// rows once it has caught up. SQLite has no native logical-replication or
// LISTEN/NOTIFY mechanism to push changes, so polling is this engine's way
// of turning an append-only table into a live feed — the same approach the
// relational reference implementation this is grounded on takes.
const pollInterval = 200 * time.Millisecond

const pollBatchSize = 256

// Subscribe replays every matching event already committed at or before the
// moment of the call, then polls for newly committed matching events every
// pollInterval until ctx is canceled.
func (e *Engine) Subscribe(ctx context.Context, req domain.SubscribeRequest) (<-chan domain.Event, <-chan error) {
	out := make(chan domain.Event)
	errCh := make(chan error, 1)

	if err := domain.ValidateTenantID(req.TenantID); err != nil {
		errCh <- err
		close(out)
		return out, errCh
	}

	go func() {
		defer close(out)

		// pollSince returns rows strictly after its cursor, and
		// FromGlobalNonce itself is delivered.
		var cursor uint64
		if req.FromGlobalNonce > 0 {
			cursor = req.FromGlobalNonce - 1
		}
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			batch, err := e.pollSince(ctx, req.TenantID, req.AggregateIDPrefix, cursor)
			if err != nil {
				errCh <- err
				return
			}
			for _, ev := range batch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				cursor = ev.GlobalNonce
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func (e *Engine) pollSince(ctx context.Context, tenantID, prefix string, sinceGlobalNonce uint64) ([]domain.Event, error) {
	var rows []domain.Event
	for {
		query := `
			SELECT tenant_id, aggregate_id, aggregate_type, event_type, event_id, aggregate_nonce, global_nonce, recorded_at, data, metadata
			FROM events
			WHERE tenant_id = ? AND global_nonce > ?`
		args := []any{tenantID, sinceGlobalNonce}
		if prefix != "" {
			query += ` AND aggregate_id LIKE ? ESCAPE '\'`
			args = append(args, likePrefix(prefix))
		}
		query += ` ORDER BY global_nonce ASC LIMIT ?`
		args = append(args, pollBatchSize)

		r, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, domain.NewInternal("poll events: %v", err)
		}
		page, err := scanTenantEvents(r)
		r.Close()
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < pollBatchSize {
			break
		}
		sinceGlobalNonce = page[len(page)-1].GlobalNonce
	}
	return rows, nil
}

func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
