package backend

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestGormConfigStore_RoundTrip(t *testing.T) {
	store, err := NewGormConfigStore(newTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	in := &Config{
		BackendKind:     KindRemote,
		EnableShortTerm: true,
		EnableEntity:    true,
		Remote: &RemoteConfig{
			Workspace: "ws-1",
			Dimension: 1536,
			BaseURL:   "https://vectors.example.com",
		},
	}
	require.NoError(t, store.SetActiveConfig(ctx, "tenant-a", in))

	got, err := store.GetActiveConfig(ctx, "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindRemote, got.BackendKind)
	assert.True(t, got.EnableShortTerm)
	assert.False(t, got.EnableLongTerm)
	require.NotNil(t, got.Remote)
	assert.Equal(t, 1536, got.Remote.Dimension)
}

func TestGormConfigStore_NoConfigReturnsNilNil(t *testing.T) {
	store, err := NewGormConfigStore(newTestDB(t))
	require.NoError(t, err)

	got, err := store.GetActiveConfig(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGormConfigStore_NewConfigDeactivatesOld(t *testing.T) {
	store, err := NewGormConfigStore(newTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SetActiveConfig(ctx, "tenant-a", &Config{
		BackendKind:     KindDefault,
		EnableShortTerm: true,
	}))
	require.NoError(t, store.SetActiveConfig(ctx, "tenant-a", &Config{
		BackendKind:    KindRemote,
		EnableLongTerm: true,
	}))

	got, err := store.GetActiveConfig(ctx, "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindRemote, got.BackendKind)

	var count int64
	store.db.Model(&ConfigRow{}).Where("group_id = ? AND active = ?", "tenant-a", true).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestGormConfigStore_TenantsAreIsolated(t *testing.T) {
	store, err := NewGormConfigStore(newTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SetActiveConfig(ctx, "tenant-a", &Config{EnableEntity: true}))

	got, err := store.GetActiveConfig(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewGormConfigStore_NilDB(t *testing.T) {
	_, err := NewGormConfigStore(nil)
	require.Error(t, err)
}
