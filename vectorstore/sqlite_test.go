package vectorstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/crewmem/types"
)

func newTestSQLiteStore(t *testing.T, crewID string) *SQLiteStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewSQLiteStore(db, crewID, nil)
	require.NoError(t, err)
	return store
}

func longTermRecord(id, crewID, task string, quality float64, at time.Time) *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:              id,
		Kind:            types.MemoryLongTerm,
		TaskDescription: task,
		Quality:         quality,
		AgentID:         "planner",
		CrewID:          crewID,
		CreatedAt:       at,
	}
}

func TestSQLiteStore_SaveSearchRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, "crew-a")

	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, longTermRecord("lt1", "crew-a", "summarize quarterly report", 8.5, now)))

	results, err := store.Search(ctx, Query{K: 5, Filters: map[string]string{"task": "quarterly"}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "lt1", results[0].Record.ID)
	assert.Equal(t, "summarize quarterly report", results[0].Context)
	assert.InDelta(t, 0.85, results[0].Score, 1e-9)
}

func TestSQLiteStore_RejectsOtherKinds(t *testing.T) {
	store := newTestSQLiteStore(t, "crew-a")

	rec := &types.MemoryRecord{ID: "x", Kind: types.MemoryShortTerm, CrewID: "crew-a"}
	err := store.Save(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "long-term")

	assert.Error(t, store.Save(context.Background(), nil))
}

func TestSQLiteStore_OrderingQualityThenRecency(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, "crew-a")

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, longTermRecord("low", "crew-a", "write tests", 3, base.Add(30*time.Minute))))
	require.NoError(t, store.Save(ctx, longTermRecord("high-old", "crew-a", "write tests", 9, base)))
	require.NoError(t, store.Save(ctx, longTermRecord("high-new", "crew-a", "write tests", 9, base.Add(10*time.Minute))))

	results, err := store.Search(ctx, Query{K: 10, Filters: map[string]string{"task": "write tests"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 质量优先、同质量按时间倒序。
	assert.Equal(t, "high-new", results[0].Record.ID)
	assert.Equal(t, "high-old", results[1].Record.ID)
	assert.Equal(t, "low", results[2].Record.ID)
}

func TestSQLiteStore_CrewIsolation(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	storeA, err := NewSQLiteStore(db, "crew-a", nil)
	require.NoError(t, err)
	storeB, err := NewSQLiteStore(db, "crew-b", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, storeA.Save(ctx, longTermRecord("a1", "crew-a", "shared task", 5, now)))
	require.NoError(t, storeB.Save(ctx, longTermRecord("b1", "crew-b", "shared task", 5, now)))

	results, err := storeA.Search(ctx, Query{K: 10, Filters: map[string]string{"task": "shared"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].Record.ID)
}

func TestSQLiteStore_EmptyTaskListsRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, "crew-a")

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec := longTermRecord(fmt.Sprintf("lt%d", i), "crew-a", fmt.Sprintf("task %d", i), 5, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(ctx, rec))
	}

	results, err := store.Search(ctx, Query{K: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestNormalizeQuality(t *testing.T) {
	assert.Equal(t, 0.0, normalizeQuality(-1))
	assert.Equal(t, 0.5, normalizeQuality(5))
	assert.Equal(t, 1.0, normalizeQuality(10))
	assert.Equal(t, 1.0, normalizeQuality(42))
}
