//go:build !no_redis

package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yeisme/photovault/pkg/configs"
)

const scanBatch = 500

// RedisKV 基于 Redis 的 KV 实现.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV 创建 Redis KV 实例.
func NewRedisKV(ctx context.Context, cfg configs.KVConfig) (Store, error) {
	rc := cfg.Redis

	rdb := redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  time.Duration(rc.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(rc.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(rc.WriteTimeout) * time.Second,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisKVFromClient(rdb), nil
}

// NewRedisKVFromClient 包装已有连接.
func NewRedisKVFromClient(rdb *redis.Client) *RedisKV {
	return &RedisKV{client: rdb}
}

// Get 获取键的值.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return result, nil
}

// Set 设置键的值.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete 删除键.
func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}

	return nil
}

// Exists 检查键是否存在.
func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}

	return count > 0, nil
}

// Keys 使用 SCAN 获取匹配模式的键，避免 KEYS 阻塞实例.
func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string

	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return keys, nil
}

// HSetMany 批量写入 hash.
func (r *RedisKV) HSetMany(ctx context.Context, items map[string]map[string]string, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for key, fields := range items {
			pairs := make([]any, 0, len(fields)*2)
			for f, v := range fields {
				pairs = append(pairs, f, v)
			}

			if len(pairs) == 0 {
				continue
			}

			p.Del(ctx, key)
			p.HSet(ctx, key, pairs...)

			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write hashes: %w", err)
	}

	return nil
}

// HGetAllMany 批量读取 hash.
func (r *RedisKV) HGetAllMany(ctx context.Context, keys []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))

	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HGetAll(ctx, key)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read hashes: %w", err)
	}

	for i, cmd := range cmds {
		if m := cmd.Val(); len(m) > 0 {
			out[keys[i]] = m
		}
	}

	return out, nil
}

// ZAppend 原子追加.
func (r *RedisKV) ZAppend(ctx context.Context, args ZAppendArgs) (bool, error) {
	complete := "0"
	if args.MarkComplete {
		complete = "1"
	}

	completeTTL := args.CompleteTTL
	if completeTTL <= 0 {
		completeTTL = args.TTL
	}

	argv := make([]any, 0, 5+len(args.Members))
	argv = append(argv,
		args.After,
		strconv.FormatInt(args.TTL.Milliseconds(), 10),
		strconv.FormatInt(completeTTL.Milliseconds(), 10),
		complete,
		string(args.Mode),
	)

	for _, m := range args.Members {
		argv = append(argv, m)
	}

	n, err := appendScript.Run(ctx, r.client, []string{args.Key, args.CompleteKey}, argv...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to append %s: %w", args.Key, err)
	}

	return n == 1, nil
}

// ZRangeAfter 游标读取.
func (r *RedisKV) ZRangeAfter(ctx context.Context, key, completeKey, after string, count int) (ZWindow, error) {
	raw, err := rangeScript.Run(ctx, r.client, []string{key, completeKey}, after, count).Slice()
	if err != nil {
		return ZWindow{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	const header = 2
	if len(raw) < header {
		return ZWindow{}, fmt.Errorf("unexpected reply for %s: %v", key, raw)
	}

	status, _ := raw[0].(int64)
	complete, _ := raw[1].(int64)

	w := ZWindow{
		Found:       status != 0,
		CursorFound: status == 1,
		Complete:    complete == 1,
	}

	if status != 1 {
		return w, nil
	}

	w.Members = make([]string, 0, len(raw)-header)
	for _, v := range raw[header:] {
		if s, ok := v.(string); ok {
			w.Members = append(w.Members, s)
		}
	}

	return w, nil
}

// Ping 检查连接.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

func init() {
	RegisterKVFactory(KVTypeRedis, NewRedisKV)
}
