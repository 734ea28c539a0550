// Package journal keeps an append-only audit trail of delivery attempts.
//
// The journal never stores relayed payloads, only the metadata of each
// attempt. Backends are selected by configuration: memory, sqlite, postgres,
// redis or none.
package journal

import (
	"context"
	"errors"
	"fmt"

	"formrelay/internal/models"
)

// DefaultMaxEntries bounds a journal when no limit is configured.
const DefaultMaxEntries = 1000

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal is closed")

// Journal records delivery attempts and lists the most recent ones.
type Journal interface {
	// Record appends one delivery attempt.
	Record(ctx context.Context, d models.Delivery) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]models.Delivery, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// New creates the journal selected by cfg.Type.
func New(ctx context.Context, cfg models.JournalConfig) (Journal, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	switch cfg.Type {
	case models.JournalTypeNone, "":
		return Nop{}, nil
	case models.JournalTypeMemory:
		return NewMemory(maxEntries), nil
	case models.JournalTypeSQLite:
		return NewSQLite(ctx, cfg.DSN, maxEntries)
	case models.JournalTypePostgres:
		return NewPostgres(ctx, cfg.DSN, maxEntries)
	case models.JournalTypeRedis:
		return NewRedis(ctx, cfg.Redis, maxEntries)
	default:
		return nil, fmt.Errorf("unsupported journal type: %s", cfg.Type)
	}
}

// SupportedTypes returns every journal type New accepts.
func SupportedTypes() []string {
	return []string{
		models.JournalTypeNone,
		models.JournalTypeMemory,
		models.JournalTypeSQLite,
		models.JournalTypePostgres,
		models.JournalTypeRedis,
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) Record(context.Context, models.Delivery) error { return nil }

func (Nop) Recent(context.Context, int) ([]models.Delivery, error) {
	return []models.Delivery{}, nil
}

func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() error               { return nil }
