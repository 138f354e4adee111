package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "interview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	memSQLite, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { memSQLite.Close() })

	return map[string]Store{
		"memory":        NewMemoryStore(),
		"sqlite_file":   sqliteStore,
		"sqlite_memory": memSQLite,
	}
}

func TestStorePersistAndList(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id1, err := store.Persist(ctx, "knowledge_card", []byte(`{"id":"kc-1","title":"Staff Engineer"}`))
			require.NoError(t, err)
			id2, err := store.Persist(ctx, "applicant_profile", []byte(`{"name":"Sam"}`))
			require.NoError(t, err)
			id3, err := store.Persist(ctx, "knowledge_card", []byte(`{"id":"kc-2","title":"Lead"}`))
			require.NoError(t, err)
			assert.NotEqual(t, id1, id3)

			cards, err := store.List(ctx, "knowledge_card")
			require.NoError(t, err)
			require.Len(t, cards, 2)
			assert.Equal(t, id1, cards[0].ID)
			assert.Equal(t, id3, cards[1].ID)
			assert.JSONEq(t, `{"id":"kc-1","title":"Staff Engineer"}`, string(cards[0].Payload))
			assert.False(t, cards[0].CreatedAt.IsZero())

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, id2, all[1].ID)

			types, err := store.RecordTypes(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"applicant_profile", "knowledge_card"}, types)
		})
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Persist(ctx, "", []byte(`{}`))
			assert.Error(t, err)

			_, err = store.Persist(ctx, "artifact_record", []byte(`not json`))
			assert.Error(t, err)

			records, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestSQLiteStoreReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "interview.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	id, err := first.Persist(ctx, "timeline_entry", []byte(`{"id":"t1","title":"Engineer"}`))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	records, err := second.List(ctx, "timeline_entry")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Persist(context.Background(), "artifact_record", []byte(`{}`))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = store.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStoreHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Persist(ctx, "artifact_record", []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
}
