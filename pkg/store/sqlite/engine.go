// Package sqlite implements the store.EventStore engine contract against
// a SQLite database via modernc.org/sqlite, a pure-Go driver with no CGo
// dependency. It is the durable alternative to pkg/store/memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plaenen/tenant-eventstore/pkg/domain"
	"github.com/plaenen/tenant-eventstore/pkg/store/sqlite/migrate"
)

// Engine is a SQLite-backed store.EventStore.
type Engine struct {
	db *sql.DB
	mu sync.Mutex // serializes writers; SQLite has no row-level locking
}

type engineConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		dsn:          "eventstore.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures an Engine at construction time.
type Option func(*engineConfig)

func WithDSN(dsn string) Option { return func(c *engineConfig) { c.dsn = dsn } }

func WithMemoryDatabase() Option { return func(c *engineConfig) { c.dsn = "file::memory:?cache=shared" } }

func WithFilename(filename string) Option { return func(c *engineConfig) { c.dsn = filename } }

func WithMaxOpenConns(n int) Option { return func(c *engineConfig) { c.maxOpenConns = n } }

func WithMaxIdleConns(n int) Option { return func(c *engineConfig) { c.maxIdleConns = n } }

func WithWALMode(enabled bool) Option { return func(c *engineConfig) { c.walMode = enabled } }

func WithAutoMigrate(enabled bool) Option { return func(c *engineConfig) { c.autoMigrate = enabled } }

// New opens (creating if necessary) a SQLite database and, unless
// WithAutoMigrate(false) was passed, brings its schema up to date.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if cfg.walMode {
		if err := setWALMode(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	e := &Engine{db: db}

	if cfg.autoMigrate {
		m := migrate.New(db, "schema_migrations")
		if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("load migrations: %w", err)
		}
		if err := m.Up(); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	return e, nil
}

func setWALMode(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Append(ctx context.Context, req domain.AppendRequest) (domain.AppendResult, error) {
	// Fingerprint before normalization fills in event IDs, on a copy of the
	// events so the caller's slice is left as it was passed.
	req.Events = append([]domain.AppendEvent(nil), req.Events...)
	fp := domain.BatchFingerprint(&req)
	if err := domain.NormalizeAppendRequest(&req); err != nil {
		return domain.AppendResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// e.mu is what serializes appends on this Engine: the nonce read and the
	// inserts below cannot interleave with another Append through the same
	// Engine. The BEGIN IMMEDIATE statement is issued inside the transaction
	// BeginTx has already opened; its error is ignored.
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AppendResult{}, domain.NewInternal("begin transaction: %v", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		// some drivers start the tx lazily; ignore if unsupported and rely
		// on the UNIQUE constraint + trigger below for correctness
	}

	if req.IdempotencyKey != "" {
		var fingerprint string
		var lastNonce, globalNonce uint64
		err := tx.QueryRowContext(ctx, `
			SELECT fingerprint, last_aggregate_nonce, global_nonce
			FROM idempotency_records
			WHERE tenant_id = ? AND aggregate_id = ? AND idempotency_key = ?`,
			req.TenantID, req.AggregateID, req.IdempotencyKey,
		).Scan(&fingerprint, &lastNonce, &globalNonce)
		switch {
		case err == nil:
			if fingerprint != fp {
				return domain.AppendResult{}, domain.NewAlreadyExists(
					"idempotency_key %q was already used for a different batch on aggregate %s",
					req.IdempotencyKey, req.AggregateID)
			}
			events, err := e.loadByNonceRangeTx(ctx, tx, req.TenantID, req.AggregateID,
				lastNonce-uint64(len(req.Events))+1, lastNonce)
			if err != nil {
				return domain.AppendResult{}, err
			}
			return domain.AppendResult{LastAggregateNonce: lastNonce, GlobalNonce: globalNonce, Events: events}, nil
		case err != sql.ErrNoRows:
			return domain.AppendResult{}, domain.NewInternal("lookup idempotency record: %v", err)
		}
	}

	var lastNonce, lastGlobalNonce uint64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(aggregate_nonce), 0), COALESCE(MAX(global_nonce), 0) FROM events
		WHERE tenant_id = ? AND aggregate_id = ?`,
		req.TenantID, req.AggregateID,
	).Scan(&lastNonce, &lastGlobalNonce)
	if err != nil {
		return domain.AppendResult{}, domain.NewInternal("read current nonce: %v", err)
	}
	if req.ExpectedAggregateNonce != lastNonce {
		return domain.AppendResult{}, domain.NewConcurrencyError(req.TenantID, req.AggregateID, req.ExpectedAggregateNonce, lastNonce, lastGlobalNonce)
	}

	now := time.Now()
	committed := make([]domain.Event, 0, len(req.Events))
	for i, ev := range req.Events {
		metaJSON, err := json.Marshal(ev.Metadata)
		if err != nil {
			return domain.AppendResult{}, domain.NewInternal("marshal metadata: %v", err)
		}
		nonce := lastNonce + uint64(i) + 1
		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (tenant_id, aggregate_id, aggregate_type, aggregate_nonce, event_type, event_id, recorded_at, data, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.TenantID, req.AggregateID, req.AggregateType, nonce, ev.EventType, ev.EventID, now.UnixMilli(), ev.Data, string(metaJSON),
		)
		if err != nil {
			return domain.AppendResult{}, domain.NewInternal("insert event: %v", err)
		}
		globalNonce, err := res.LastInsertId()
		if err != nil {
			return domain.AppendResult{}, domain.NewInternal("read global nonce: %v", err)
		}
		committed = append(committed, domain.Event{
			TenantID: req.TenantID, AggregateID: req.AggregateID, AggregateType: req.AggregateType,
			EventType: ev.EventType, EventID: ev.EventID, AggregateNonce: nonce,
			GlobalNonce: uint64(globalNonce), RecordedAt: now, Data: ev.Data, Metadata: ev.Metadata,
		})
	}

	result := domain.AppendResult{
		LastAggregateNonce: committed[len(committed)-1].AggregateNonce,
		GlobalNonce:        committed[len(committed)-1].GlobalNonce,
		Events:             committed,
	}

	if req.IdempotencyKey != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO idempotency_records (tenant_id, aggregate_id, idempotency_key, fingerprint, last_aggregate_nonce, global_nonce, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			req.TenantID, req.AggregateID, req.IdempotencyKey, fp, result.LastAggregateNonce, result.GlobalNonce, now.UnixMilli(),
		); err != nil {
			return domain.AppendResult{}, domain.NewInternal("record idempotency key: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.AppendResult{}, domain.NewInternal("commit transaction: %v", err)
	}

	return result, nil
}

func (e *Engine) loadByNonceRangeTx(ctx context.Context, tx *sql.Tx, tenantID, aggregateID string, from, to uint64) ([]domain.Event, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT aggregate_type, event_type, event_id, aggregate_nonce, global_nonce, recorded_at, data, metadata
		FROM events
		WHERE tenant_id = ? AND aggregate_id = ? AND aggregate_nonce BETWEEN ? AND ?
		ORDER BY aggregate_nonce ASC`,
		tenantID, aggregateID, from, to)
	if err != nil {
		return nil, domain.NewInternal("load idempotent replay events: %v", err)
	}
	defer rows.Close()
	return scanEvents(tenantID, aggregateID, rows)
}

func scanEvents(tenantID, aggregateID string, rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var recordedMs int64
		var metaJSON string
		if err := rows.Scan(&ev.AggregateType, &ev.EventType, &ev.EventID, &ev.AggregateNonce, &ev.GlobalNonce, &recordedMs, &ev.Data, &metaJSON); err != nil {
			return nil, domain.NewInternal("scan event row: %v", err)
		}
		ev.TenantID = tenantID
		ev.AggregateID = aggregateID
		ev.RecordedAt = time.UnixMilli(recordedMs)
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &ev.Metadata); err != nil {
				return nil, domain.NewInternal("unmarshal event metadata: %v", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewInternal("iterate event rows: %v", err)
	}
	return events, nil
}

// scanTenantEvents is scanEvents for queries spanning multiple aggregates,
// where tenant_id/aggregate_id come from the row itself rather than being
// fixed by the caller.
func scanTenantEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var recordedMs int64
		var metaJSON string
		if err := rows.Scan(&ev.TenantID, &ev.AggregateID, &ev.AggregateType, &ev.EventType, &ev.EventID,
			&ev.AggregateNonce, &ev.GlobalNonce, &recordedMs, &ev.Data, &metaJSON); err != nil {
			return nil, domain.NewInternal("scan event row: %v", err)
		}
		ev.RecordedAt = time.UnixMilli(recordedMs)
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &ev.Metadata); err != nil {
				return nil, domain.NewInternal("unmarshal event metadata: %v", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewInternal("iterate event rows: %v", err)
	}
	return events, nil
}
