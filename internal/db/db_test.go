package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL(t *testing.T) {
	sql, err := UpsertSQL("snapshots", []string{"kind", "payload", "generated_at"}, []string{"kind"})
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO snapshots (kind, payload, generated_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (kind) DO UPDATE SET payload = EXCLUDED.payload, generated_at = EXCLUDED.generated_at",
		sql)
}

func TestUpsertSQLCompositeKey(t *testing.T) {
	sql, err := UpsertSQL("fetch_cache", []string{"module", "day", "payload"}, []string{"module", "day"})
	require.NoError(t, err)
	assert.Contains(t, sql, "ON CONFLICT (module, day)")
	assert.Contains(t, sql, "payload = EXCLUDED.payload")
	assert.NotContains(t, sql, "module = EXCLUDED.module")
}

func TestUpsertSQLErrors(t *testing.T) {
	_, err := UpsertSQL("t", nil, []string{"id"})
	assert.Error(t, err)

	_, err = UpsertSQL("t", []string{"id"}, nil)
	assert.Error(t, err)

	_, err = UpsertSQL("t", []string{"id"}, []string{"id"})
	assert.Error(t, err)
}

func TestUpsertExecutes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs("metrics", []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = Upsert(context.Background(), mock, "snapshots",
		[]string{"kind", "payload"}, []string{"kind"}, "metrics", []byte(`{}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertValueCountMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = Upsert(context.Background(), mock, "snapshots",
		[]string{"kind", "payload"}, []string{"kind"}, "metrics")
	assert.Error(t, err)
}
