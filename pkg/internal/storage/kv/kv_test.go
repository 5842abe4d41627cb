package kv_test

import (
	"context"
	crand "crypto/rand"
	"fmt"
	mrand "math/rand"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

// stores 返回参与一致性测试的实现. Redis 需设置 REDIS_ADDR 启用.
func stores(t testing.TB) map[string]kv.Store {
	t.Helper()

	out := map[string]kv.Store{"memory": kv.NewMemory()}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return out
	}

	cfg := configs.Defaults().KV
	cfg.Type = string(kv.KVTypeRedis)
	cfg.Redis.Addr = addr
	cfg.Redis.DB = 15

	store, err := kv.NewKVStore(context.Background(), cfg)
	if err != nil {
		t.Logf("redis not available: %v", err)
		return out
	}

	out["redis"] = store

	return out
}

func uniqueKey(name string) string {
	return fmt.Sprintf("kvtest:%s:%d", name, time.Now().UnixNano())
}

func TestStringOps(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := uniqueKey("str")

			_, err := store.Get(ctx, key)
			require.ErrorIs(t, err, kv.ErrKeyNotFound)

			require.NoError(t, store.Set(ctx, key, []byte("v1"), time.Minute))

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), got)

			ok, err := store.Exists(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)

			keys, err := store.Keys(ctx, key[:len(key)-3]+"*")
			require.NoError(t, err)
			assert.Contains(t, keys, key)

			require.NoError(t, store.Delete(ctx, key, key+":missing"))

			ok, err = store.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHashOps(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			k1, k2 := uniqueKey("h1"), uniqueKey("h2")

			err := store.HSetMany(ctx, map[string]map[string]string{
				k1: {"caption": "", "tags": "[]"},
				k2: {"caption": "sunset"},
			}, time.Minute)
			require.NoError(t, err)

			got, err := store.HGetAllMany(ctx, []string{k1, k2, k1 + ":missing"})
			require.NoError(t, err)
			assert.Len(t, got, 2)
			assert.Equal(t, "", got[k1]["caption"])
			assert.Equal(t, "[]", got[k1]["tags"])
			assert.Equal(t, "sunset", got[k2]["caption"])

			// 覆盖写入会替换整个 hash
			require.NoError(t, store.HSetMany(ctx, map[string]map[string]string{k2: {"tags": "[\"a\"]"}}, time.Minute))

			got, err = store.HGetAllMany(ctx, []string{k2})
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"tags": "[\"a\"]"}, got[k2])

			require.NoError(t, store.Delete(ctx, k1, k2))
		})
	}
}

func TestZAppendSeq(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := uniqueKey("seq")
			done := key + ":complete"
			args := func(after string, members []string, complete bool) kv.ZAppendArgs {
				return kv.ZAppendArgs{
					Key: key, CompleteKey: done, After: after, Members: members,
					TTL: time.Minute, MarkComplete: complete, Mode: kv.ZModeSeq,
				}
			}

			w, err := store.ZRangeAfter(ctx, key, done, "", 3)
			require.NoError(t, err)
			assert.False(t, w.Found)

			ok, err := store.ZAppend(ctx, args("", []string{"9", "7", "5"}, false))
			require.NoError(t, err)
			assert.True(t, ok)

			// 重复写入同一前缀是幂等的
			ok, err = store.ZAppend(ctx, args("", []string{"9", "7"}, false))
			require.NoError(t, err)
			assert.True(t, ok)

			// 与已有前缀冲突的段被拒绝
			ok, err = store.ZAppend(ctx, args("", []string{"9", "8"}, false))
			require.NoError(t, err)
			assert.False(t, ok)

			// 游标不在列表中
			ok, err = store.ZAppend(ctx, args("42", []string{"1"}, false))
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = store.ZAppend(ctx, args("5", []string{"3", "1"}, true))
			require.NoError(t, err)
			assert.True(t, ok)

			w, err = store.ZRangeAfter(ctx, key, done, "", 10)
			require.NoError(t, err)
			assert.True(t, w.Found)
			assert.True(t, w.Complete)
			assert.Equal(t, []string{"9", "7", "5", "3", "1"}, w.Members)

			w, err = store.ZRangeAfter(ctx, key, done, "7", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"5", "3"}, w.Members)

			w, err = store.ZRangeAfter(ctx, key, done, "100", 2)
			require.NoError(t, err)
			assert.True(t, w.Found)
			assert.False(t, w.CursorFound)

			require.NoError(t, store.Delete(ctx, key, done))
		})
	}
}

func TestZAppendLexOrdersByMember(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := uniqueKey("lex")
			done := key + ":complete"

			ok, err := store.ZAppend(ctx, kv.ZAppendArgs{
				Key: key, CompleteKey: done, Members: []string{"a1", "b2"},
				TTL: time.Minute, Mode: kv.ZModeLex,
			})
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = store.ZAppend(ctx, kv.ZAppendArgs{
				Key: key, CompleteKey: done, After: "b2", Members: []string{"c3"},
				TTL: time.Minute, Mode: kv.ZModeLex, MarkComplete: true,
			})
			require.NoError(t, err)
			require.True(t, ok)

			w, err := store.ZRangeAfter(ctx, key, done, "a1", 5)
			require.NoError(t, err)
			assert.True(t, w.Complete)
			assert.Equal(t, []string{"b2", "c3"}, w.Members)

			require.NoError(t, store.Delete(ctx, key, done))
		})
	}
}

func TestEmptyCompleteResult(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := uniqueKey("empty")
			done := key + ":complete"

			ok, err := store.ZAppend(ctx, kv.ZAppendArgs{
				Key: key, CompleteKey: done, TTL: time.Minute, Mode: kv.ZModeSeq, MarkComplete: true,
			})
			require.NoError(t, err)
			require.True(t, ok)

			w, err := store.ZRangeAfter(ctx, key, done, "", 5)
			require.NoError(t, err)
			assert.True(t, w.Found)
			assert.True(t, w.Complete)
			assert.Empty(t, w.Members)

			require.NoError(t, store.Delete(ctx, key, done))
		})
	}
}

func TestCompleteMarkerStaleAfterListExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := kv.NewMemory()
	store.SetClock(func() time.Time { return now })

	ok, err := store.ZAppend(ctx, kv.ZAppendArgs{
		Key: "l", CompleteKey: "l:complete", Members: []string{"1"},
		TTL: time.Second, CompleteTTL: time.Hour, Mode: kv.ZModeSeq, MarkComplete: true,
	})
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)

	w, err := store.ZRangeAfter(ctx, "l", "l:complete", "", 5)
	require.NoError(t, err)
	// 列表过期后不能把残留的完整标记当成空结果
	assert.False(t, w.Found)
	assert.False(t, w.Complete)
}

type failingStore struct {
	kv.Store
	calls int
}

func (f *failingStore) Get(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, fmt.Errorf("connection refused")
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingStore{Store: kv.NewMemory()}
	cfg := configs.Defaults().CircuitBreaker
	cfg.MinRequests = 3
	cfg.FailureRate = 0.5

	store := kv.NewBreakerStore(inner, cfg)
	ctx := context.Background()

	for range 5 {
		_, err := store.Get(ctx, "k")
		require.Error(t, err)
	}

	assert.Equal(t, 3, inner.calls, "breaker should stop calling the store once open")
	assert.NoError(t, store.Ping(ctx))
}

func TestBreakerIgnoresMisses(t *testing.T) {
	cfg := configs.Defaults().CircuitBreaker
	cfg.MinRequests = 1

	store := kv.NewBreakerStore(kv.NewMemory(), cfg)

	for range 5 {
		_, err := store.Get(context.Background(), "missing")
		require.ErrorIs(t, err, kv.ErrKeyNotFound)
	}

	assert.Equal(t, "closed", store.State().String())
}

func BenchmarkMemoryKV(b *testing.B) {
	store := kv.NewMemory()

	benchKV(b, "memory", store)
	benchKVParallel(b, "memory", store)
	_ = store.Close()
}

// Optional: enable with ENABLE_REDIS_BENCH=1 and REDIS_ADDR set (default 127.0.0.1:6379).
func BenchmarkRedisKV(b *testing.B) {
	if os.Getenv("ENABLE_REDIS_BENCH") == "" {
		b.Skip("set ENABLE_REDIS_BENCH=1 to enable")
	}

	cfg := configs.Defaults().KV
	cfg.Type = string(kv.KVTypeRedis)

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	store, err := kv.NewKVStore(context.Background(), cfg)
	if err != nil {
		b.Skipf("redis not available: %v", err)
		return
	}

	benchKV(b, "redis", store)
	benchKVParallel(b, "redis", store)
	_ = store.Close()
}

// randBytes returns n random bytes, seeded reproducibly for bench.
func randBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		mr := mrand.New(mrand.NewSource(42))
		for i := range b {
			b[i] = byte(mr.Intn(256))
		}
	}

	return b
}

// benchKV 执行基本的 Set/Get/Delete 基准测试.
func benchKV(b *testing.B, name string, store kv.KVStore) {
	ctx := context.Background()
	sizes := []int{32, 1024}
	ttls := []time.Duration{0, 5 * time.Second}

	for _, size := range sizes {
		payload := randBytes(size)
		for _, ttl := range ttls {
			b.Run(fmt.Sprintf("%s/size=%d/ttl=%s", name, size, ttl), func(b *testing.B) {
				b.ReportAllocs()

				for i := 0; b.Loop(); i++ {
					key := fmt.Sprintf("bench-%s-%d", name, i)
					if err := store.Set(ctx, key, payload, ttl); err != nil {
						b.Fatalf("set failed: %v", err)
					}

					if _, err := store.Get(ctx, key); err != nil {
						b.Fatalf("get failed: %v", err)
					}

					if err := store.Delete(ctx, key); err != nil {
						b.Fatalf("delete failed: %v", err)
					}
				}
			})
		}
	}
}

// benchKVParallel 执行并行的 Set/Get/Delete 基准测试.
func benchKVParallel(b *testing.B, name string, store kv.KVStore) {
	ctx := context.Background()
	payload := randBytes(1024)

	var ctr uint64

	b.Run(fmt.Sprintf("%s/parallel", name), func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				i := atomic.AddUint64(&ctr, 1)

				key := fmt.Sprintf("bench-%s-p-%d", name, i)
				if err := store.Set(ctx, key, payload, 0); err != nil {
					b.Fatalf("set failed: %v", err)
				}

				if _, err := store.Get(ctx, key); err != nil {
					b.Fatalf("get failed: %v", err)
				}

				if err := store.Delete(ctx, key); err != nil {
					b.Fatalf("delete failed: %v", err)
				}
			}
		})
	})
}
