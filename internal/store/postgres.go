package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-pulse/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	name       TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fetch_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	module     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	kind         TEXT PRIMARY KEY,
	payload      JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_module ON fetch_cache(module);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetToken(ctx context.Context, name string) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT token FROM oauth_tokens WHERE name = $1 AND expires_at > now()`,
		name,
	).Scan(&token)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get token %s", name)
	}
	return token, nil
}

func (s *PostgresStore) SetToken(ctx context.Context, name, token string, ttl time.Duration) error {
	now := time.Now().UTC()
	err := db.Upsert(ctx, s.pool, "oauth_tokens",
		[]string{"name", "token", "expires_at", "updated_at"},
		[]string{"name"},
		name, token, now.Add(ttl), now,
	)
	return eris.Wrapf(err, "postgres: set token %s", name)
}

func (s *PostgresStore) GetCachedFetch(ctx context.Context, module string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM fetch_cache WHERE module = $1 AND expires_at > now()
		 ORDER BY fetched_at DESC LIMIT 1`,
		module,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cached fetch %s", module)
	}
	return payload, nil
}

func (s *PostgresStore) SetCachedFetch(ctx context.Context, module string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_cache (module, payload, fetched_at, expires_at) VALUES ($1, $2, $3, $4)`,
		module, payload, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: set cached fetch %s", module)
}

func (s *PostgresStore) DeleteExpiredFetches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fetch_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired fetches")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, kind string, payload []byte, generatedAt time.Time) error {
	err := db.Upsert(ctx, s.pool, "snapshots",
		[]string{"kind", "payload", "generated_at", "updated_at"},
		[]string{"kind"},
		kind, payload, generatedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert snapshot %s", kind)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, kind string) (*SnapshotRow, error) {
	var sr SnapshotRow
	err := s.pool.QueryRow(ctx,
		`SELECT kind, payload, generated_at, updated_at FROM snapshots WHERE kind = $1`,
		kind,
	).Scan(&sr.Kind, &sr.Payload, &sr.GeneratedAt, &sr.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", kind)
	}
	return &sr, nil
}
