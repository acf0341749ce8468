package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute), mr
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	key, err := c.Key(ctx, "medios", "u1", "nombre=x")
	require.NoError(t, err)
	assert.Equal(t, "alertas:medios:u1:nombre=x:v1", key)

	var calls int
	loader := func(context.Context) (any, error) {
		calls++
		return []row{{ID: "1", Nombre: "El Tiempo"}}, nil
	}

	var first, second []row
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestBumpChangesKeys(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	before, err := c.Key(ctx, "proyectos")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.Key(ctx, "proyectos")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "alertas:proyectos:v2", after)
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	boom := errors.New("backend down")
	var dest []row
	err := c.FetchJSON(ctx, "alertas:k", &dest, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("alertas:k"))
}

func TestConcurrentFetchesCoalesce(t *testing.T) {
	c := New(nil, 0)
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return row{ID: "1"}, nil
	}

	var wg sync.WaitGroup
	results := make([]row, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.FetchJSON(context.Background(), "alertas:same", &results[i], loader)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, "1", r.ID)
	}
}

func TestNilCacheFallsThrough(t *testing.T) {
	var c *Cache
	var dest row
	err := c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) {
		return row{Nombre: "x"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "x", dest.Nombre)
	key, err := c.Key(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "alertas:a:b", key)
}

func TestFetchJSONServesLoaderResultWhenWriteFails(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	key, err := c.Key(ctx, "medios", "u1", "")
	require.NoError(t, err)

	loader := func(context.Context) (any, error) {
		mr.SetError("READONLY You can't write against a read only replica.")
		return []row{{ID: "7", Nombre: "Radio"}}, nil
	}

	var got []row
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	assert.Equal(t, []row{{ID: "7", Nombre: "Radio"}}, got)

	mr.SetError("")
	assert.False(t, mr.Exists(key))
}
