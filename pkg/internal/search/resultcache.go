package search

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

// DefaultResultTTL 结果列表有效期，只用于缓解突发请求.
const DefaultResultTTL = 5 * time.Minute

// Entry 结果列表中的一项.
type Entry struct {
	ID   int64
	Rank *float64
}

// Cursor 把条目转换为指向它的游标.
func (e Entry) Cursor() *Cursor {
	c := &Cursor{ID: e.ID}
	if e.Rank != nil {
		r := *e.Rank
		c.Rank = &r
	}

	return c
}

// Window 一次命中的缓存页.
type Window struct {
	Entries []Entry
	HasMore bool
}

// ResultCache 搜索结果 ID 列表缓存.
type ResultCache interface {
	// Lookup 读取 after 之后的 limit 项. 返回 false 表示不可用，调用方回源.
	Lookup(ctx context.Context, key string, after *Cursor, limit int) (Window, bool, error)
	// AppendIDs 在 after 之后按给定顺序追加. 与已缓存部分不连续的段被静默丢弃.
	AppendIDs(ctx context.Context, key string, after *Cursor, entries []Entry, markComplete bool) error
}

// memberCodec 决定条目在有序列表中的表示.
type memberCodec interface {
	mode() kv.ZMode
	encode(e Entry) (string, error)
	decode(member string) (Entry, error)
}

// KVResultCache 基于 KV 有序列表的实现.
type KVResultCache struct {
	store       kv.SequenceStore
	codec       memberCodec
	ttl         time.Duration
	completeTTL time.Duration
}

// NewTagResultCache 按插入顺序保存，成员为十进制 id.
func NewTagResultCache(store kv.SequenceStore, ttl, completeTTL time.Duration) *KVResultCache {
	return newResultCache(store, seqCodec{}, ttl, completeTTL)
}

// NewRankedResultCache 成员为 (rank desc, id desc) 的定长十六进制复合键，
// 成员的字节序即结果顺序，rank 可从成员还原.
func NewRankedResultCache(store kv.SequenceStore, ttl, completeTTL time.Duration) *KVResultCache {
	return newResultCache(store, rankCodec{}, ttl, completeTTL)
}

func newResultCache(store kv.SequenceStore, codec memberCodec, ttl, completeTTL time.Duration) *KVResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}

	if completeTTL <= 0 {
		completeTTL = ttl
	}

	return &KVResultCache{store: store, codec: codec, ttl: ttl, completeTTL: completeTTL}
}

func (c *KVResultCache) Lookup(ctx context.Context, key string, after *Cursor, limit int) (Window, bool, error) {
	afterMember, err := c.cursorMember(after)
	if err != nil {
		return Window{}, false, err
	}

	w, err := c.store.ZRangeAfter(ctx, key, CompleteKey(key), afterMember, limit+1)
	if err != nil {
		return Window{}, false, err
	}

	if !w.Found || !w.CursorFound {
		return Window{}, false, nil
	}

	members := w.Members
	hasMore := len(members) > limit

	switch {
	case hasMore:
		members = members[:limit]
	case !w.Complete:
		// 不足 limit+1 且未完整：无法区分真正的结尾与尚未填充
		return Window{}, false, nil
	}

	entries := make([]Entry, len(members))

	for i, m := range members {
		e, err := c.codec.decode(m)
		if err != nil {
			return Window{}, false, fmt.Errorf("decode member of %s: %w", key, err)
		}

		entries[i] = e
	}

	return Window{Entries: entries, HasMore: hasMore}, true, nil
}

func (c *KVResultCache) AppendIDs(ctx context.Context, key string, after *Cursor, entries []Entry, markComplete bool) error {
	afterMember, err := c.cursorMember(after)
	if err != nil {
		return err
	}

	members := make([]string, len(entries))

	for i, e := range entries {
		m, err := c.codec.encode(e)
		if err != nil {
			return err
		}

		members[i] = m
	}

	ok, err := c.store.ZAppend(ctx, kv.ZAppendArgs{
		Key:          key,
		CompleteKey:  CompleteKey(key),
		After:        afterMember,
		Members:      members,
		TTL:          c.ttl,
		CompleteTTL:  c.completeTTL,
		MarkComplete: markComplete,
		Mode:         c.codec.mode(),
	})
	if err != nil {
		return err
	}

	if !ok {
		zerolog.Ctx(ctx).Debug().Str("key", key).Stringer("after", after).Msg("skip non-contiguous result segment")
	}

	return nil
}

func (c *KVResultCache) cursorMember(after *Cursor) (string, error) {
	if after == nil {
		return "", nil
	}

	return c.codec.encode(Entry{ID: after.ID, Rank: after.Rank})
}

type seqCodec struct{}

func (seqCodec) mode() kv.ZMode { return kv.ZModeSeq }

func (seqCodec) encode(e Entry) (string, error) {
	return strconv.FormatInt(e.ID, 10), nil
}

func (seqCodec) decode(member string) (Entry, error) {
	id, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return Entry{}, err
	}

	return Entry{ID: id}, nil
}

type rankCodec struct{}

const rankMemberLen = 32

func (rankCodec) mode() kv.ZMode { return kv.ZModeLex }

func (rankCodec) encode(e Entry) (string, error) {
	if e.Rank == nil {
		return "", fmt.Errorf("%w: ranked entry %d without rank", ErrInvalidCursor, e.ID)
	}

	return fmt.Sprintf("%016x%016x", ^orderedBits(*e.Rank), ^uint64(e.ID)), nil
}

func (rankCodec) decode(member string) (Entry, error) {
	if len(member) != rankMemberLen {
		return Entry{}, fmt.Errorf("bad ranked member %q", member)
	}

	hi, err := strconv.ParseUint(member[:16], 16, 64)
	if err != nil {
		return Entry{}, err
	}

	lo, err := strconv.ParseUint(member[16:], 16, 64)
	if err != nil {
		return Entry{}, err
	}

	rank := fromOrderedBits(^hi)

	return Entry{ID: int64(^lo), Rank: &rank}, nil
}

const signBit = uint64(1) << 63

// orderedBits 把 float64 映射为按数值升序的无符号整数，-0 与 0 视为相同.
func orderedBits(f float64) uint64 {
	if f == 0 {
		f = 0
	}

	b := math.Float64bits(f)
	if b&signBit != 0 {
		return ^b
	}

	return b | signBit
}

func fromOrderedBits(b uint64) float64 {
	if b&signBit != 0 {
		return math.Float64frombits(b &^ signBit)
	}

	return math.Float64frombits(^b)
}
