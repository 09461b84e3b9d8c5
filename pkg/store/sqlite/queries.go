package sqlite

import (
	"context"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
)

func (e *Engine) ReadStream(ctx context.Context, req domain.ReadStreamRequest) (domain.ReadStreamResult, error) {
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

	switch req.Direction {
	case domain.ReadForward:
		return e.readForward(ctx, req, limit)
	case domain.ReadBackward:
		return e.readBackward(ctx, req, limit)
	default:
		return domain.ReadStreamResult{}, domain.NewInvalid("unknown read direction")
	}
}

func (e *Engine) readForward(ctx context.Context, req domain.ReadStreamRequest, limit uint32) (domain.ReadStreamResult, error) {
	start := req.FromNonce
	if start == 0 {
		start = 1
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT aggregate_type, event_type, event_id, aggregate_nonce, global_nonce, recorded_at, data, metadata
		FROM events
		WHERE tenant_id = ? AND aggregate_id = ? AND aggregate_nonce >= ?
		ORDER BY aggregate_nonce ASC
		LIMIT ?`,
		req.TenantID, req.AggregateID, start, limit)
	if err != nil {
		return domain.ReadStreamResult{}, domain.NewInternal("read forward: %v", err)
	}
	defer rows.Close()
	events, err := scanEvents(req.TenantID, req.AggregateID, rows)
	if err != nil {
		return domain.ReadStreamResult{}, err
	}

	if len(events) == 0 {
		next := start
		if next < 1 {
			next = 1
		}
		return domain.ReadStreamResult{NextFromAggregateNonce: next, IsEnd: true}, nil
	}

	last := events[len(events)-1]
	var maxNonce uint64
	if err := e.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(aggregate_nonce), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?`,
		req.TenantID, req.AggregateID).Scan(&maxNonce); err != nil {
		return domain.ReadStreamResult{}, domain.NewInternal("read max nonce: %v", err)
	}

	return domain.ReadStreamResult{
		Events:                 events,
		NextFromAggregateNonce: last.AggregateNonce + 1,
		IsEnd:                  last.AggregateNonce >= maxNonce,
	}, nil
}

func (e *Engine) readBackward(ctx context.Context, req domain.ReadStreamRequest, limit uint32) (domain.ReadStreamResult, error) {
	start := req.FromNonce
	if start == 0 {
		if err := e.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(aggregate_nonce), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?`,
			req.TenantID, req.AggregateID).Scan(&start); err != nil {
			return domain.ReadStreamResult{}, domain.NewInternal("read max nonce: %v", err)
		}
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT aggregate_type, event_type, event_id, aggregate_nonce, global_nonce, recorded_at, data, metadata
		FROM events
		WHERE tenant_id = ? AND aggregate_id = ? AND aggregate_nonce <= ? AND aggregate_nonce > 0
		ORDER BY aggregate_nonce DESC
		LIMIT ?`,
		req.TenantID, req.AggregateID, start, limit)
	if err != nil {
		return domain.ReadStreamResult{}, domain.NewInternal("read backward: %v", err)
	}
	defer rows.Close()
	events, err := scanEvents(req.TenantID, req.AggregateID, rows)
	if err != nil {
		return domain.ReadStreamResult{}, err
	}

	if len(events) == 0 {
		return domain.ReadStreamResult{NextFromAggregateNonce: 0, IsEnd: true}, nil
	}

	last := events[len(events)-1]
	next := uint64(0)
	if last.AggregateNonce > 1 {
		next = last.AggregateNonce - 1
	}
	return domain.ReadStreamResult{
		Events:                 events,
		NextFromAggregateNonce: next,
		IsEnd:                  last.AggregateNonce <= 1,
	}, nil
}

