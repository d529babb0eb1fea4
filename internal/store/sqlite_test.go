package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteTokenRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Miss returns empty without error.
	token, err := s.GetToken(ctx, "zoho-access-token")
	require.NoError(t, err)
	assert.Equal(t, "", token)

	require.NoError(t, s.SetToken(ctx, "zoho-access-token", "tok-1", time.Hour))
	token, err = s.GetToken(ctx, "zoho-access-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Overwrite replaces the token.
	require.NoError(t, s.SetToken(ctx, "zoho-access-token", "tok-2", time.Hour))
	token, err = s.GetToken(ctx, "zoho-access-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestSQLiteTokenExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "expired", "tok", -time.Minute))
	token, err := s.GetToken(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, "", token)
}

func TestSQLiteFetchCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload, err := s.GetCachedFetch(ctx, "Leads")
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, s.SetCachedFetch(ctx, "Leads", []byte(`[{"id":"1"}]`), time.Hour))
	payload, err = s.GetCachedFetch(ctx, "Leads")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"1"}]`), payload)

	// Other modules stay independent.
	payload, err = s.GetCachedFetch(ctx, "Calls")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestSQLiteFetchCacheExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedFetch(ctx, "Leads", []byte(`[]`), -time.Minute))
	payload, err := s.GetCachedFetch(ctx, "Leads")
	require.NoError(t, err)
	assert.Nil(t, payload)

	n, err := s.DeleteExpiredFetches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeleteExpiredFetches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteSnapshotUpsertKeepsOneRowPerKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row, err := s.GetSnapshot(ctx, KindMetrics)
	require.NoError(t, err)
	assert.Nil(t, row)

	first := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertSnapshot(ctx, KindMetrics, []byte(`{"v":1}`), first))

	second := first.Add(time.Hour)
	require.NoError(t, s.UpsertSnapshot(ctx, KindMetrics, []byte(`{"v":2}`), second))

	row, err = s.GetSnapshot(ctx, KindMetrics)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, KindMetrics, row.Kind)
	assert.Equal(t, []byte(`{"v":2}`), row.Payload)
	assert.True(t, row.GeneratedAt.Equal(second))
}

func TestSQLiteSnapshotKindsIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, s.UpsertSnapshot(ctx, KindMetrics, []byte(`{"m":1}`), at))
	require.NoError(t, s.UpsertSnapshot(ctx, KindCalls, []byte(`{"c":1}`), at))

	metrics, err := s.GetSnapshot(ctx, KindMetrics)
	require.NoError(t, err)
	calls, err := s.GetSnapshot(ctx, KindCalls)
	require.NoError(t, err)

	assert.Equal(t, []byte(`{"m":1}`), metrics.Payload)
	assert.Equal(t, []byte(`{"c":1}`), calls.Payload)

	duration, err := s.GetSnapshot(ctx, KindDuration)
	require.NoError(t, err)
	assert.Nil(t, duration)
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}
