package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_runs (
	shipment_id TEXT        NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	digest      TEXT        NOT NULL,
	total_risk  DOUBLE PRECISION NOT NULL,
	snapshot    JSONB       NOT NULL,
	kpi         JSONB       NOT NULL,
	PRIMARY KEY (shipment_id, created_at)
);
CREATE TABLE IF NOT EXISTS quotes (
	shipment_id     TEXT        NOT NULL,
	request_id      TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	snapshot_digest TEXT        NOT NULL,
	quote           JSONB       NOT NULL,
	PRIMARY KEY (shipment_id, request_id)
);`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// tx is the part of pgx.Tx the store uses.
type tx interface {
	execer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// db is the part of pgxpool.Pool the store uses.
type db interface {
	execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	begin(ctx context.Context) (tx, error)
}

type poolDB struct{ *pgxpool.Pool }

func (p poolDB) begin(ctx context.Context) (tx, error) { return p.Pool.Begin(ctx) }

// Postgres stores runs and quotes in PostgreSQL through a pgx pool.
type Postgres struct {
	db   db
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: poolDB{pool}, pool: pool}
}

// NewPostgresFromConnString opens a pool for connString.
func NewPostgresFromConnString(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return NewPostgres(pool), nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the append-only tables if they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func persistErr(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Wrap(apperr.Service, "persist "+what, err)
}

const (
	insertRun = `INSERT INTO risk_runs (shipment_id, created_at, digest, total_risk, snapshot, kpi)
		 VALUES ($1, $2, $3, $4, $5, $6)`
	insertQuote = `INSERT INTO quotes (shipment_id, request_id, created_at, snapshot_digest, quote)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (shipment_id, request_id) DO NOTHING`
)

func runArgs(run Run) ([]any, error) {
	snap, err := json.Marshal(run.Snapshot)
	if err != nil {
		return nil, err
	}
	kpi, err := json.Marshal(run.KPI)
	if err != nil {
		return nil, err
	}
	return []any{run.ShipmentID, run.CreatedAt, run.Digest, run.Snapshot.TotalRisk, snap, kpi}, nil
}

// SaveRun inserts one risk run.
func (p *Postgres) SaveRun(ctx context.Context, run Run) error {
	args, err := runArgs(run)
	if err != nil {
		return persistErr("risk run", err)
	}
	if _, err := p.db.Exec(ctx, insertRun, args...); err != nil {
		return persistErr("risk run", err)
	}
	return nil
}

// SaveQuote inserts the quote and its run in one transaction. The quote goes first so a
// replayed request id aborts before the run is written.
func (p *Postgres) SaveQuote(ctx context.Context, run Run, q models.Quote) (err error) {
	args, err := runArgs(run)
	if err != nil {
		return persistErr("quote", err)
	}
	data, err := json.Marshal(q)
	if err != nil {
		return persistErr("quote", err)
	}

	t, err := p.db.begin(ctx)
	if err != nil {
		return persistErr("quote", err)
	}
	defer func() {
		if err != nil {
			_ = t.Rollback(context.WithoutCancel(ctx))
		}
	}()

	tag, err := t.Exec(ctx, insertQuote, q.ShipmentID, q.RequestID, q.CreatedAt, q.SnapshotDigest, data)
	if err != nil {
		return persistErr("quote", err)
	}
	if tag.RowsAffected() == 0 {
		return duplicateQuote(q)
	}
	if _, err = t.Exec(ctx, insertRun, args...); err != nil {
		return persistErr("risk run", err)
	}
	if err = t.Commit(ctx); err != nil {
		return persistErr("quote", err)
	}
	return nil
}

// LatestRun reads the newest run for a shipment.
func (p *Postgres) LatestRun(ctx context.Context, shipmentID string) (Run, error) {
	var (
		run       Run
		snap, kpi []byte
	)
	err := p.db.QueryRow(ctx,
		`SELECT shipment_id, created_at, digest, snapshot, kpi
		   FROM risk_runs
		  WHERE shipment_id = $1
		  ORDER BY created_at DESC
		  LIMIT 1`, shipmentID).Scan(&run.ShipmentID, &run.CreatedAt, &run.Digest, &snap, &kpi)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, apperr.NotFoundf("no risk run for shipment " + shipmentID)
	}
	if err != nil {
		return Run{}, persistErr("risk run lookup", err)
	}
	if err := json.Unmarshal(snap, &run.Snapshot); err != nil {
		return Run{}, apperr.Wrap(apperr.Service, "decode stored snapshot", err)
	}
	if err := json.Unmarshal(kpi, &run.KPI); err != nil {
		return Run{}, apperr.Wrap(apperr.Service, "decode stored kpi", err)
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}
