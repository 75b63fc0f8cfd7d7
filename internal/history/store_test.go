package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhritac/jellyfin-collection/internal/database"
	"github.com/alexhritac/jellyfin-collection/internal/report"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return NewStore(db.Conn(), zerolog.Nop())
}

func sampleReport(trigger string) *report.RunReport {
	r := report.NewRunReport(trigger, false)
	r.AddCollection("Films", report.CollectionReport{
		Name:         "Trending",
		Fetched:      40,
		AfterFilters: 30,
		Matched:      25,
		Missing:      5,
		ItemsAdded:   3,
		ItemsRemoved: 1,
	})
	r.Finalize()
	return r
}

func TestSaveAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	r := sampleReport("manual")
	require.NoError(t, store.Save(ctx, r))

	entry, err := store.Get(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, "manual", entry.Trigger)
	assert.True(t, entry.Success)
	assert.Equal(t, 1, entry.Collections)
	assert.Equal(t, 3, entry.ItemsAdded)
	assert.Equal(t, 1, entry.ItemsRemoved)

	require.NotNil(t, entry.Report)
	require.Len(t, entry.Report.Libraries, 1)
	assert.Equal(t, "Trending", entry.Report.Libraries[0].Collections[0].Name)
}

func TestGetMissingRun(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first := sampleReport("scheduled")
	first.StartedAt = time.Now().Add(-2 * time.Hour)
	first.EndedAt = first.StartedAt.Add(time.Minute)
	second := sampleReport("manual")

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	entries, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, second.ID, entries[0].ID, "most recent run first")
	assert.Nil(t, entries[0].Report, "List should not hydrate full reports")
}

func TestLast(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	entry, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry, "empty store has no last run")

	r := sampleReport("manual")
	require.NoError(t, store.Save(ctx, r))

	entry, err = store.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, r.ID, entry.ID)
	assert.NotNil(t, entry.Report, "Last includes the full report")
}

func TestPrune(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old := sampleReport("scheduled")
	old.StartedAt = time.Now().Add(-40 * 24 * time.Hour)
	old.EndedAt = old.StartedAt.Add(time.Minute)
	fresh := sampleReport("manual")

	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, fresh))

	deleted, err := store.Prune(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fresh.ID, entries[0].ID)
}
