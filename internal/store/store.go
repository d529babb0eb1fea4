package store

import (
	"context"
	"time"
)

// Snapshot kinds persisted by the store. Exactly one row exists per kind;
// each update replaces the previous snapshot wholesale.
const (
	KindMetrics  = "metrics"
	KindCalls    = "call-analysis"
	KindDuration = "duration-outcome"
)

// SnapshotRow is the latest persisted snapshot of one kind.
type SnapshotRow struct {
	Kind        string    `json:"kind"`
	Payload     []byte    `json:"payload"`
	GeneratedAt time.Time `json:"generated_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store defines the persistence interface for the dashboard pipeline:
// OAuth token caching, raw CRM fetch caching, and latest-snapshot storage.
type Store interface {
	// Token cache. GetToken returns "" on miss or expiry.
	GetToken(ctx context.Context, name string) (string, error)
	SetToken(ctx context.Context, name, token string, ttl time.Duration) error

	// Raw fetch cache, keyed by CRM module name. GetCachedFetch returns
	// nil on miss or expiry.
	GetCachedFetch(ctx context.Context, module string) ([]byte, error)
	SetCachedFetch(ctx context.Context, module string, payload []byte, ttl time.Duration) error
	DeleteExpiredFetches(ctx context.Context) (int, error)

	// Latest snapshot per kind. GetSnapshot returns nil when the kind has
	// never been written.
	UpsertSnapshot(ctx context.Context, kind string, payload []byte, generatedAt time.Time) error
	GetSnapshot(ctx context.Context, kind string) (*SnapshotRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
