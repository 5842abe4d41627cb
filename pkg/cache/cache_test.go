package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/cache"
	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

type tagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGetMiss(t *testing.T) {
	c := cache.NewCache(kv.NewMemory())

	_, err := cache.Get[tagCount](context.Background(), c, "nonexistent")
	require.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := cache.NewCache(kv.NewMemory())
	ctx := context.Background()

	want := []tagCount{{Name: "beach", Count: 3}, {Name: "sunset", Count: 1}}
	require.NoError(t, cache.Set(ctx, c, "user:1:tags", want, time.Minute))

	got, err := cache.Get[[]tagCount](ctx, c, "user:1:tags")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ok, err := c.Exists(ctx, "user:1:tags")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "user:1:tags"))

	ok, err = c.Exists(ctx, "user:1:tags")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrSet(t *testing.T) {
	c := cache.NewCache(kv.NewMemory())
	ctx := context.Background()

	calls := 0
	getter := func() ([]tagCount, error) {
		calls++
		return []tagCount{{Name: "cat", Count: 2}}, nil
	}

	first, err := cache.GetOrSet(ctx, c, "user:5:tags", getter, time.Minute)
	require.NoError(t, err)

	second, err := cache.GetOrSet(ctx, c, "user:5:tags", getter, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestGetOrSetGetterError(t *testing.T) {
	c := cache.NewCache(kv.NewMemory())

	_, err := cache.GetOrSet(context.Background(), c, "k", func() (int, error) {
		return 0, errors.New("getter error")
	}, 0)
	require.EqualError(t, err, "getter error")
}

func TestGetOrSetCollapsesConcurrentMisses(t *testing.T) {
	c := cache.NewCache(kv.NewMemory())
	ctx := context.Background()

	var calls atomic.Int32

	release := make(chan struct{})
	getter := func() (int, error) {
		calls.Add(1)
		<-release

		return 42, nil
	}

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := cache.GetOrSet(ctx, c, "hot", getter, time.Minute)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	// 等第一个回源开始后再放行
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

// unavailableKV 读取总是失败，模拟熔断打开.
type unavailableKV struct {
	*kv.MemoryKV
}

func (unavailableKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("breaker open")
}

func TestGetOrSetSkipsWriteBackWhenKVFails(t *testing.T) {
	store := unavailableKV{kv.NewMemory()}
	c := cache.NewCache(store)
	ctx := context.Background()

	v, err := cache.GetOrSet(ctx, c, "k", func() (int, error) { return 1, nil }, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrSetRewritesUndecodable(t *testing.T) {
	store := kv.NewMemory()
	c := cache.NewCache(store)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("not json"), time.Minute))

	_, err := cache.Get[int](ctx, c, "k")
	require.ErrorIs(t, err, cache.ErrDecode)

	v, err := cache.GetOrSet(ctx, c, "k", func() (int, error) { return 7, nil }, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	got, err := cache.Get[int](ctx, c, "k")
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestClearByPattern(t *testing.T) {
	store := kv.NewMemory()
	c := cache.NewCache(store)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, cache.Set(ctx, c, fmt.Sprintf("user:7:search:tags:%d:any", i), i, 0))
	}

	require.NoError(t, cache.Set(ctx, c, "user:8:search:tags:0:any", 0, 0))

	n, err := c.Clear(ctx, "user:7:search:*")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:8:search:tags:0:any"}, keys)
}

func BenchmarkGetOrSet(b *testing.B) {
	c := cache.NewCache(kv.NewMemory())
	ctx := context.Background()

	for b.Loop() {
		_, _ = cache.GetOrSet(ctx, c, "bench", func() (tagCount, error) {
			return tagCount{Name: "x", Count: 1}, nil
		}, time.Minute)
	}
}
