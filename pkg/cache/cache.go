// Package cache 提供基于键值存储的泛型缓存实现.
//
// 值使用 sonic 编码为 JSON，适合体积小、读多写少的派生数据，例如用户的标签词表.
//
//	tags, err := cache.GetOrSet(ctx, c, "user:7:tags", func() ([]TagCount, error) {
//	    return repo.ListTags(ctx, 7)
//	}, 10*time.Minute)
//
// 缓存未命中与读取失败都会触发 getter，同一个键的并发回源合并为一次.
// 只有未命中或旧值无法解码时写回；KV 本身报错(熔断打开等)时只回源.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

// deleteBatch 每批删除的键数量.
const deleteBatch = 256

// ErrDecode 缓存中的值无法解码为目标类型.
var ErrDecode = errors.New("cache: decode value")

// Cache 基于KV存储的缓存实现.
type Cache struct {
	kvStore kv.KVStore
	group   singleflight.Group
}

// NewCache 创建一个新的缓存实例.
func NewCache(kvStore kv.KVStore) *Cache {
	return &Cache{
		kvStore: kvStore,
	}
}

// Get 泛型获取缓存值. 未命中时返回的错误满足 errors.Is(err, kv.ErrKeyNotFound).
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("%w %s: %w", ErrDecode, key, err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, key, data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.kvStore.Delete(ctx, keys...)
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, key)
}

// GetOrSet 获取缓存值，如果不存在则调用 getter 并写回.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	value, err := Get[T](ctx, c, key)
	if err == nil {
		return value, nil
	}

	writeBack := errors.Is(err, kv.ErrKeyNotFound) || errors.Is(err, ErrDecode)

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := getter()
		if err != nil {
			return nil, err
		}

		// 写回失败仍返回新值
		if writeBack {
			_ = Set(ctx, c, key, value, ttl)
		}

		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	value, _ = v.(T)

	return value, nil
}

// Clear 删除匹配 glob 模式的全部键，返回删除数量.
func (c *Cache) Clear(ctx context.Context, pattern string) (int, error) {
	keys, err := c.kvStore.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}

	var errs []error

	deleted := 0

	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		if err := c.kvStore.Delete(ctx, keys[start:end]...); err != nil {
			errs = append(errs, err)
			continue
		}

		deleted += end - start
	}

	return deleted, errors.Join(errs...)
}
