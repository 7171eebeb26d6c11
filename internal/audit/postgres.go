// Package audit persists reconciliation outcomes to Postgres for later
// review. Only requests that consulted a secondary source are recorded.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/reconcile"
)

// Pool is the subset of pgxpool.Pool the recorder needs. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPool creates a pgx connection pool for the audit database.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "audit: parse dsn")
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "audit: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "audit: ping")
	}
	return pool, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reconcile_audit (
    request_id        UUID PRIMARY KEY,
    ticker            TEXT NOT NULL,
    trade_date        TEXT NOT NULL DEFAULT '',
    selected_source   TEXT NOT NULL,
    anomaly_flags     JSONB NOT NULL DEFAULT '[]',
    consulted_sources JSONB NOT NULL DEFAULT '[]',
    disagreement      BOOLEAN NOT NULL DEFAULT FALSE,
    recorded_at       TIMESTAMPTZ NOT NULL
)`

// Recorder writes reconciliation outcomes to reconcile_audit. It
// implements reconcile.AuditSink.
type Recorder struct {
	pool Pool
}

// NewRecorder creates a recorder over the given pool.
func NewRecorder(pool Pool) *Recorder {
	return &Recorder{pool: pool}
}

// EnsureSchema creates the audit table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return eris.Wrap(err, "audit: ensure schema")
	}
	return nil
}

// Record inserts one reconciliation outcome.
func (r *Recorder) Record(ctx context.Context, req reconcile.Request, res *reconcile.Result) error {
	flags := make([]string, len(res.Flags))
	for i, f := range res.Flags {
		flags[i] = string(f)
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "audit: marshal flags")
	}
	consultedJSON, err := json.Marshal(res.ConsultedSources)
	if err != nil {
		return eris.Wrap(err, "audit: marshal consulted sources")
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO reconcile_audit
			(request_id, ticker, trade_date, selected_source, anomaly_flags,
			 consulted_sources, disagreement, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.RequestID, req.Ticker, req.Date, res.SelectedSource,
		flagsJSON, consultedJSON, res.Disagreement, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "audit: insert record %s", res.RequestID)
	}

	zap.L().Debug("audit: recorded reconciliation",
		zap.String("request_id", res.RequestID),
		zap.String("ticker", req.Ticker),
		zap.String("selected_source", res.SelectedSource),
	)
	return nil
}
