package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]KVStore {
	t.Helper()
	sqliteStore, err := NewSQLiteKVStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]KVStore{
		"simple": NewSimpleKVStore(),
		"sqlite": sqliteStore,
	}
}

func TestKVStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			val := StoredValue{"score": 0.5, "reason": "partly relevant", "verdicts": []interface{}{"yes", "no"}}
			require.NoError(t, store.Put(ctx, "k1", val, ""))

			got, err := store.Get(ctx, "k1", DefaultCollection)
			require.NoError(t, err)
			assert.Equal(t, 0.5, got["score"])
			assert.Equal(t, "partly relevant", got["reason"])
			assert.Equal(t, []interface{}{"yes", "no"}, got["verdicts"])

			missing, err := store.Get(ctx, "k1", "other")
			require.NoError(t, err)
			assert.Nil(t, missing)

			require.NoError(t, store.Put(ctx, "k1", StoredValue{"score": 1.0}, ""))
			got, err = store.Get(ctx, "k1", "")
			require.NoError(t, err)
			assert.Equal(t, StoredValue{"score": 1.0}, got)

			require.NoError(t, store.Put(ctx, "k2", StoredValue{"score": 0.0}, ""))
			all, err := store.GetAll(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			deleted, err := store.Delete(ctx, "k1", "")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = store.Delete(ctx, "k1", "")
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestSimpleKVStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewSimpleKVStore()

	val := StoredValue{"a": "b"}
	require.NoError(t, store.Put(ctx, "k", val, ""))
	val["a"] = "changed"

	got, err := store.Get(ctx, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "b", got["a"])

	assert.Error(t, store.Put(ctx, "bad", StoredValue{"ch": make(chan int)}, ""))
}

func TestSimpleKVStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "judge.json")

	store, err := FromPersistPath(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", StoredValue{"score": 0.25}, "judge"))

	reloaded, err := FromPersistPath(ctx, path)
	require.NoError(t, err)
	got, err := reloaded.Get(ctx, "k", "judge")
	require.NoError(t, err)
	assert.Equal(t, 0.25, got["score"])
}

func TestSQLiteKVStoreFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "judge.db")

	store, err := NewSQLiteKVStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", StoredValue{"score": 0.75}, "judge"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteKVStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "k", "judge")
	require.NoError(t, err)
	assert.Equal(t, 0.75, got["score"])
}
