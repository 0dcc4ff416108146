package store_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/offline-gateway/internal/store"
)

func newRedisStorage(t *testing.T) *store.RedisStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisStorage(client)
}

func TestRedisStoragePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key(http.MethodGet, "/index.html")
	require.NoError(t, st.Put(ctx, key, testEntry("/index.html", "hello")))

	entry, ok, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/index.html", entry.URL)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, "OK", entry.StatusText)
	assert.Equal(t, []byte("hello"), entry.Body)
	assert.Equal(t, "text/html", entry.Headers["Content-Type"])
}

func TestRedisStorageGetMiss(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)

	_, ok, err := st.Get(ctx, "GET /missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStorageNamesAndRemove(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	v1, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	_, err = storage.Open(ctx, "v2")
	require.NoError(t, err)

	require.NoError(t, v1.Put(ctx, "GET /", testEntry("/", "x")))

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, names)

	require.NoError(t, storage.Remove(ctx, "v1"))

	names, err = storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	// Entries of the removed store are gone even if the name is reopened.
	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	n, err := st.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStoreKeysAreScopedToStore(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	v1, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	v2, err := storage.Open(ctx, "v2")
	require.NoError(t, err)

	require.NoError(t, v1.Put(ctx, "GET /a", testEntry("/a", "a")))
	require.NoError(t, v2.Put(ctx, "GET /b", testEntry("/b", "b")))

	keys, err := v1.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /a"}, keys)

	_, ok, err := v2.Get(ctx, "GET /a")
	require.NoError(t, err)
	assert.False(t, ok, "stores must not leak entries into each other")
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	st, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "GET /a", testEntry("/a", "a")))
	require.NoError(t, st.Delete(ctx, "GET /a"))

	_, ok, err := st.Get(ctx, "GET /a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	_, err := store.NewRedisClient(store.RedisConfig{})
	assert.ErrorIs(t, err, store.ErrEmptyAddress)
}
