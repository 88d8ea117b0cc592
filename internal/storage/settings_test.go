package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSettings_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "selector")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.SetSetting(ctx, "selector", "div.card"))
	require.NoError(t, store.SetSetting(ctx, "selector", "li.booking"))

	got, err := store.GetSetting(ctx, "selector")
	require.NoError(t, err)
	assert.Equal(t, "li.booking", got)

	all, err := store.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"selector": "li.booking"}, all)

	require.NoError(t, store.DeleteSetting(ctx, "selector"))
	require.NoError(t, store.DeleteSetting(ctx, "selector"))
	_, err = store.GetSetting(ctx, "selector")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSettings_Validation(t *testing.T) {
	store := createTestStorage(t)

	//nolint:staticcheck // nil context is the case under test
	_, err := store.GetSetting(nil, "selector")
	assert.ErrorIs(t, err, common.ErrNilContext)

	err = store.SetSetting(context.Background(), "  ", "x")
	assert.ErrorIs(t, err, common.ErrEmptyString)

	_, err = NewSQLiteStorage("")
	assert.ErrorIs(t, err, common.ErrEmptyString)
}

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}
