package reporting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestCacheListenerFollowsRemoteBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}
	reader := NewCache(newClient(), time.Minute)
	writer := NewCache(newClient(), time.Minute)
	require.NoError(t, reader.ListenForInvalidation(ctx))

	ver, err := reader.Version(ctx, "ACME")
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	require.NoError(t, writer.Bump(ctx, "ACME"))
	require.Eventually(t, func() bool {
		v, err := reader.Version(ctx, "ACME")
		return err == nil && v == 2
	}, time.Second, 10*time.Millisecond)
}

func TestFetchJSONSharesConcurrentMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return map[string]int{"n": 7}, nil
	}

	var wg sync.WaitGroup
	results := make([]map[string]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out map[string]int
			if err := cache.FetchJSON(context.Background(), "report:ACME:k", &out, loader); err == nil {
				results[i] = out
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for _, out := range results {
		require.Equal(t, 7, out["n"])
	}
	require.True(t, mr.Exists("report:ACME:k"))
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var cache *Cache
	var out []string
	err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out)
	require.NoError(t, cache.Bump(context.Background(), "ACME"))

	key, err := cache.BuildKey(context.Background(), "ACME", "dashboard")
	require.NoError(t, err)
	require.Equal(t, "report:ACME:dashboard", key)
}

func TestParseBump(t *testing.T) {
	company, ver, ok := parseBump("ACME:12")
	require.True(t, ok)
	require.Equal(t, "ACME", company)
	require.EqualValues(t, 12, ver)

	_, _, ok = parseBump("garbage")
	require.False(t, ok)
}
