package store_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/offline-gateway/internal/store"
)

func testEntry(url, body string) *store.Entry {
	return &store.Entry{
		URL:        url,
		Status:     http.StatusOK,
		StatusText: "OK",
		Headers:    map[string]string{"Content-Type": "text/html"},
		Body:       []byte(body),
		StoredAt:   time.Now().UTC(),
	}
}

func TestMemoryStoragePutGet(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key(http.MethodGet, "/index.html")

	_, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Put(ctx, key, testEntry("/index.html", "hello")))

	entry, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), entry.Body)
	assert.Equal(t, http.StatusOK, entry.Status)
}

func TestMemoryStoragePutOverwrites(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()
	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key(http.MethodGet, "/")
	require.NoError(t, st.Put(ctx, key, testEntry("/", "old")))
	require.NoError(t, st.Put(ctx, key, testEntry("/", "new")))

	entry, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), entry.Body)

	n, err := st.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStorageGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()
	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key(http.MethodGet, "/")
	require.NoError(t, st.Put(ctx, key, testEntry("/", "body")))

	entry, _, err := st.Get(ctx, key)
	require.NoError(t, err)
	entry.Body[0] = 'X'
	entry.Headers["Content-Type"] = "mutated"

	fresh, _, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), fresh.Body)
	assert.Equal(t, "text/html", fresh.Headers["Content-Type"])
}

func TestMemoryStorageOpenIsStable(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	st1, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, st1.Put(ctx, "k", testEntry("/", "x")))

	st2, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	n, err := st2.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "reopening a store must see its entries")
}

func TestMemoryStorageRemove(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	_, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	_, err = storage.Open(ctx, "v2")
	require.NoError(t, err)

	require.NoError(t, storage.Remove(ctx, "v1"))
	require.NoError(t, storage.Remove(ctx, "ghost"), "removing an absent store is not an error")

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
}

func TestMemoryStoreDeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()
	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)

	keyA := store.Key(http.MethodGet, "/a")
	keyB := store.Key(http.MethodGet, "/b")
	require.NoError(t, st.Put(ctx, keyA, testEntry("/a", "a")))
	require.NoError(t, st.Put(ctx, keyB, testEntry("/b", "b")))

	require.NoError(t, st.Delete(ctx, keyA))
	require.NoError(t, st.Delete(ctx, keyA), "double delete is not an error")

	keys, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{keyB}, keys)
}
