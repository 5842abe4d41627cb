package kv

import (
	"context"
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/yeisme/photovault/pkg/configs"
)

type memKind int

const (
	memString memKind = iota
	memHash
	memList
)

type memEntry struct {
	kind     memKind
	str      []byte
	hash     map[string]string
	members  []string // memList，已按模式排好序
	expireAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryKV 进程内 KV 实现，语义与 Redis 实现保持一致，过期在访问时惰性清理.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]*memEntry
	now  func() time.Time
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV(_ context.Context, _ configs.KVConfig) (Store, error) {
	return NewMemory(), nil
}

// NewMemory 直接创建内存实现，测试中常用.
func NewMemory() *MemoryKV {
	return &MemoryKV{data: make(map[string]*memEntry), now: time.Now}
}

// SetClock 替换时间源，用于测试过期.
func (m *MemoryKV) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// load 调用方需持有锁.
func (m *MemoryKV) load(key string) (*memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}

	if e.expired(m.now()) {
		delete(m.data, key)
		return nil, false
	}

	return e, true
}

func (m *MemoryKV) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return m.now().Add(ttl)
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	if e.kind != memString {
		return nil, fmt.Errorf("wrong type for key: %s", key)
	}

	return slices.Clone(e.str), nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = &memEntry{kind: memString, str: slices.Clone(value), expireAt: m.deadline(ttl)}

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}

	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.load(key)

	return ok, nil
}

// Keys 获取匹配 glob 模式的键.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0)

	for k := range m.data {
		if _, ok := m.load(k); !ok {
			continue
		}

		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}

		if matched {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	return keys, nil
}

// HSetMany 批量写入 hash.
func (m *MemoryKV) HSetMany(_ context.Context, items map[string]map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, fields := range items {
		if len(fields) == 0 {
			continue
		}

		m.data[key] = &memEntry{kind: memHash, hash: maps.Clone(fields), expireAt: m.deadline(ttl)}
	}

	return nil
}

// HGetAllMany 批量读取 hash.
func (m *MemoryKV) HGetAllMany(_ context.Context, keys []string) (map[string]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]string, len(keys))

	for _, k := range keys {
		if e, ok := m.load(k); ok && e.kind == memHash {
			out[k] = maps.Clone(e.hash)
		}
	}

	return out, nil
}

// ZAppend 原子追加，规则同 Redis 脚本.
func (m *MemoryKV) ZAppend(_ context.Context, args ZAppendArgs) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []string

	e, ok := m.load(args.Key)
	if ok {
		if e.kind != memList {
			return false, fmt.Errorf("wrong type for key: %s", args.Key)
		}

		list = e.members
	}

	start := 0

	if args.After != "" {
		idx := slices.Index(list, args.After)
		if idx < 0 {
			return false, nil
		}

		start = idx + 1
	}

	existing := list[start:]
	overlap := min(len(existing), len(args.Members))

	for i := range overlap {
		if existing[i] != args.Members[i] {
			return false, nil
		}
	}

	if args.MarkComplete && len(existing) > len(args.Members) {
		return false, nil
	}

	next := slices.Clone(list)
	for _, member := range args.Members[overlap:] {
		next = insertMember(next, member, args.Mode)
	}

	if len(next) > 0 {
		m.data[args.Key] = &memEntry{kind: memList, members: next, expireAt: m.deadline(args.TTL)}
	}

	if args.MarkComplete {
		completeTTL := args.CompleteTTL
		if completeTTL <= 0 {
			completeTTL = args.TTL
		}

		m.data[args.CompleteKey] = &memEntry{
			kind:     memString,
			str:      []byte(strconv.Itoa(len(next))),
			expireAt: m.deadline(completeTTL),
		}
	}

	return true, nil
}

// insertMember 按模式放置成员，已存在的成员先移除（与 ZADD 更新语义一致）.
func insertMember(list []string, member string, mode ZMode) []string {
	if idx := slices.Index(list, member); idx >= 0 {
		list = slices.Delete(list, idx, idx+1)
	}

	if mode == ZModeLex {
		pos, _ := slices.BinarySearch(list, member)
		return slices.Insert(list, pos, member)
	}

	return append(list, member)
}

// ZRangeAfter 游标读取.
func (m *MemoryKV) ZRangeAfter(_ context.Context, key, completeKey, after string, count int) (ZWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []string
	if e, ok := m.load(key); ok && e.kind == memList {
		list = e.members
	}

	complete := false
	if e, ok := m.load(completeKey); ok && e.kind == memString {
		complete = string(e.str) == strconv.Itoa(len(list))
	}

	if len(list) == 0 {
		if complete && after == "" {
			return ZWindow{Found: true, CursorFound: true, Complete: true}, nil
		}

		return ZWindow{}, nil
	}

	start := 0

	if after != "" {
		idx := slices.Index(list, after)
		if idx < 0 {
			return ZWindow{Found: true, Complete: complete}, nil
		}

		start = idx + 1
	}

	end := min(start+count, len(list))

	return ZWindow{
		Found:       true,
		CursorFound: true,
		Complete:    complete,
		Members:     slices.Clone(list[start:end]),
	}, nil
}

// Ping 内存实现始终可用.
func (m *MemoryKV) Ping(context.Context) error {
	return nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeMemory, NewMemoryKV)
}
