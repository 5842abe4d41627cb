// Package kv 提供用于键值存储的接口和实现.
//
// 除普通字符串键外，Store 还提供两类搜索缓存所需的原语：
//   - hash：照片元数据 photo:{id}，批量读写走 pipeline
//   - 有序 ID 列表：搜索结果分页，追加与游标读取在服务端原子完成
package kv

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/yeisme/photovault/pkg/configs"
)

// ErrKeyNotFound 键不存在.
var ErrKeyNotFound = errors.New("kv: key not found")

type Client struct {
	Store
}

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值，不存在时返回 ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，可选过期时间.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除一个或多个键，不存在的键被忽略.
	Delete(ctx context.Context, keys ...string) error
	// Exists 检查键是否存在.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 获取匹配 glob 模式的键.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close 关闭存储连接.
	Close() error
}

// HashStore 批量 hash 读写.
type HashStore interface {
	// HSetMany 写入多个 hash 并设置过期时间，已存在的 hash 被整体覆盖.
	HSetMany(ctx context.Context, items map[string]map[string]string, ttl time.Duration) error
	// HGetAllMany 批量读取 hash，不存在的键不会出现在结果中.
	HGetAllMany(ctx context.Context, keys []string) (map[string]map[string]string, error)
}

// ZMode 决定有序列表成员的排序方式.
type ZMode string

const (
	// ZModeSeq 按追加顺序，score 为位置序号.
	ZModeSeq ZMode = "seq"
	// ZModeLex score 恒为 0，按成员字节序排列.
	ZModeLex ZMode = "lex"
)

// ZAppendArgs 追加参数.
type ZAppendArgs struct {
	Key          string
	CompleteKey  string
	After        string // 追加位置，空表示从头开始
	Members      []string
	TTL          time.Duration
	CompleteTTL  time.Duration
	MarkComplete bool // 同时标记列表已到达末尾
	Mode         ZMode
}

// ZWindow 游标读取结果.
type ZWindow struct {
	Found       bool // 列表存在（或已缓存为空且完整）
	CursorFound bool // After 为空或 After 在列表中
	Complete    bool // 完整标记存在且与列表长度一致
	Members     []string
}

// SequenceStore 分页 ID 列表.
type SequenceStore interface {
	// ZAppend 在 After 之后追加成员. 已有部分必须与新成员前缀一致，否则不写入并返回 false.
	ZAppend(ctx context.Context, args ZAppendArgs) (bool, error)
	// ZRangeAfter 读取 after 之后最多 count 个成员.
	ZRangeAfter(ctx context.Context, key, completeKey, after string, count int) (ZWindow, error)
}

// Store 聚合全部能力.
type Store interface {
	KVStore
	HashStore
	SequenceStore
	// Ping 检查连接.
	Ping(ctx context.Context) error
}

// KVType 键值存储类型.
type KVType string

const (
	KVTypeRedis  KVType = "redis"
	KVTypeMemory KVType = "memory"
)

// KVFactory 定义创建 Store 的工厂函数类型.
type KVFactory func(ctx context.Context, cfg configs.KVConfig) (Store, error)

// kvFactories 存储 KV 类型到工厂的映射.
var kvFactories = make(map[KVType]KVFactory)

// RegisterKVFactory 注册 KV 工厂函数.
func RegisterKVFactory(kvType KVType, factory KVFactory) {
	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 返回已注册的 KV 类型列表.
func GetRegisteredKVTypes() []KVType {
	return slices.Sorted(maps.Keys(kvFactories))
}

// NewKVStore 根据类型创建 Store 实例.
func NewKVStore(ctx context.Context, cfg configs.KVConfig) (Store, error) {
	factory, exists := kvFactories[KVType(cfg.Type)]
	if !exists {
		return nil, fmt.Errorf("unsupported KV type: %s", cfg.Type)
	}

	return factory(ctx, cfg)
}

// NewKVClient 创建 KV 客户端，按配置包裹熔断器.
func NewKVClient(ctx context.Context, cfg configs.KVConfig, cb configs.CircuitBreakerConfig) (*Client, error) {
	store, err := NewKVStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cb.KV {
		store = NewBreakerStore(store, cb)
	}

	return &Client{Store: store}, nil
}
