package journal

import (
	"context"
	"fmt"
	"time"

	"formrelay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS formrelay_deliveries (
	job_id       TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	enqueued_at  TIMESTAMPTZ NOT NULL,
	attempted_at TIMESTAMPTZ NOT NULL,
	duration_ns  BIGINT NOT NULL,
	outcome      TEXT NOT NULL,
	status_code  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT ''
)`

// Postgres stores records in a PostgreSQL table through a pgx pool.
type Postgres struct {
	pool       *pgxpool.Pool
	maxEntries int
}

// NewPostgres connects to dsn and creates the table if needed.
func NewPostgres(ctx context.Context, dsn string, maxEntries int) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN is required for PostgreSQL journal")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Postgres{pool: pool, maxEntries: maxEntries}, nil
}

// Record implements Journal.
func (p *Postgres) Record(ctx context.Context, d models.Delivery) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO formrelay_deliveries
			(job_id, source, enqueued_at, attempted_at, duration_ns, outcome, status_code, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (job_id) DO NOTHING`,
		d.JobID, d.Source, d.EnqueuedAt, d.AttemptedAt, int64(d.Duration), d.Outcome, d.StatusCode, d.Error)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}

	if p.maxEntries > 0 {
		_, err = p.pool.Exec(ctx,
			`DELETE FROM formrelay_deliveries WHERE job_id NOT IN (
				SELECT job_id FROM formrelay_deliveries ORDER BY attempted_at DESC LIMIT $1)`,
			p.maxEntries)
		if err != nil {
			return fmt.Errorf("failed to prune deliveries: %w", err)
		}
	}
	return nil
}

// Recent implements Journal.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = p.maxEntries
	}

	rows, err := p.pool.Query(ctx,
		`SELECT job_id, source, enqueued_at, attempted_at, duration_ns, outcome, status_code, error
		 FROM formrelay_deliveries ORDER BY attempted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}

	deliveries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Delivery, error) {
		var (
			d        models.Delivery
			duration int64
		)
		if err := row.Scan(&d.JobID, &d.Source, &d.EnqueuedAt, &d.AttemptedAt, &duration, &d.Outcome, &d.StatusCode, &d.Error); err != nil {
			return d, err
		}
		d.Duration = time.Duration(duration)
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read deliveries: %w", err)
	}
	return deliveries, nil
}

// Ping implements Journal.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Journal.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
