// Package db provides shared pgx helpers for the Postgres-backed store.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store relies on. pgxmock exposes
// the same surface, which keeps the Postgres paths testable without a
// live server.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// UpsertSQL builds an INSERT ... ON CONFLICT DO UPDATE statement over the
// given columns. Conflict-key columns are left untouched on conflict;
// every other column is refreshed from the excluded row.
func UpsertSQL(table string, columns, conflictKeys []string) (string, error) {
	if len(columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(conflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}

	conflictSet := make(map[string]bool, len(conflictKeys))
	for _, k := range conflictKeys {
		conflictSet[k] = true
	}

	placeholders := make([]string, len(columns))
	var updates []string
	for i, c := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if !conflictSet[c] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	if len(updates) == 0 {
		return "", eris.New("db: upsert: every column is a conflict key")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictKeys, ", "),
		strings.Join(updates, ", "),
	), nil
}

// Upsert executes a single-row upsert built from UpsertSQL.
func Upsert(ctx context.Context, pool Pool, table string, columns, conflictKeys []string, values ...any) error {
	if len(values) != len(columns) {
		return eris.Errorf("db: upsert: %d values for %d columns", len(values), len(columns))
	}
	sql, err := UpsertSQL(table, columns, conflictKeys)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, sql, values...); err != nil {
		return eris.Wrapf(err, "db: upsert into %s", table)
	}
	return nil
}
