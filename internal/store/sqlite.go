package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	name       TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fetch_cache (
	id         TEXT PRIMARY KEY,
	module     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	kind         TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	generated_at DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_module ON fetch_cache(module);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetToken(ctx context.Context, name string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token FROM oauth_tokens WHERE name = ? AND expires_at > ?`,
		name, time.Now().UTC(),
	)
	var token string
	err := row.Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get token %s", name)
	}
	return token, nil
}

func (s *SQLiteStore) SetToken(ctx context.Context, name, token string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (name, token, expires_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET token = excluded.token,
		 expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		name, token, now.Add(ttl), now,
	)
	return eris.Wrapf(err, "sqlite: set token %s", name)
}

func (s *SQLiteStore) GetCachedFetch(ctx context.Context, module string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM fetch_cache WHERE module = ? AND expires_at > ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		module, time.Now().UTC(),
	)
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached fetch %s", module)
	}
	return []byte(payload), nil
}

func (s *SQLiteStore) SetCachedFetch(ctx context.Context, module string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (id, module, payload, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), module, string(payload), now, now.Add(ttl),
	)
	return eris.Wrapf(err, "sqlite: set cached fetch %s", module)
}

func (s *SQLiteStore) DeleteExpiredFetches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired fetches")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, kind string, payload []byte, generatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (kind, payload, generated_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET payload = excluded.payload,
		 generated_at = excluded.generated_at, updated_at = excluded.updated_at`,
		kind, string(payload), generatedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert snapshot %s", kind)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, kind string) (*SnapshotRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, payload, generated_at, updated_at FROM snapshots WHERE kind = ?`,
		kind,
	)
	var sr SnapshotRow
	var payload string
	err := row.Scan(&sr.Kind, &payload, &sr.GeneratedAt, &sr.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", kind)
	}
	sr.Payload = []byte(payload)
	return &sr, nil
}
