package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"formrelay/internal/models"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS deliveries (
	job_id       TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	enqueued_at  INTEGER NOT NULL,
	attempted_at INTEGER NOT NULL,
	duration_ns  INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	status_code  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS deliveries_attempted_at ON deliveries (attempted_at)`,
}

// SQLite stores records in a local SQLite database file. Timestamps are kept
// as Unix nanoseconds.
type SQLite struct {
	db         *sql.DB
	maxEntries int
}

// NewSQLite opens dsn and creates the schema if needed.
func NewSQLite(ctx context.Context, dsn string, maxEntries int) (*SQLite, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN is required for SQLite journal")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLite{db: db, maxEntries: maxEntries}, nil
}

// Record implements Journal.
func (s *SQLite) Record(ctx context.Context, d models.Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO deliveries
			(job_id, source, enqueued_at, attempted_at, duration_ns, outcome, status_code, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.JobID, d.Source, d.EnqueuedAt.UnixNano(), d.AttemptedAt.UnixNano(),
		int64(d.Duration), d.Outcome, d.StatusCode, d.Error)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}

	if s.maxEntries > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM deliveries WHERE job_id NOT IN (
				SELECT job_id FROM deliveries ORDER BY attempted_at DESC LIMIT ?)`,
			s.maxEntries)
		if err != nil {
			return fmt.Errorf("failed to prune deliveries: %w", err)
		}
	}
	return nil
}

// Recent implements Journal.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = s.maxEntries
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, source, enqueued_at, attempted_at, duration_ns, outcome, status_code, error
		 FROM deliveries ORDER BY attempted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]models.Delivery, 0)
	for rows.Next() {
		var (
			d                   models.Delivery
			enqueued, attempted int64
			duration            int64
		)
		if err := rows.Scan(&d.JobID, &d.Source, &enqueued, &attempted, &duration, &d.Outcome, &d.StatusCode, &d.Error); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.EnqueuedAt = time.Unix(0, enqueued).UTC()
		d.AttemptedAt = time.Unix(0, attempted).UTC()
		d.Duration = time.Duration(duration)
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}
	return deliveries, nil
}

// Ping implements Journal.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Journal.
func (s *SQLite) Close() error {
	return s.db.Close()
}
