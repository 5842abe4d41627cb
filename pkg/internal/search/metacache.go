package search

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/internal/storage/kv"
)

// DefaultPhotoTTL 元数据缓存有效期.
const DefaultPhotoTTL = 12 * time.Hour

// MetadataCache 照片展示元数据缓存. 只用于展示字段，删除状态始终以数据库为准.
type MetadataCache interface {
	// Put 幂等批量写入.
	Put(ctx context.Context, photos []Photo) error
	// GetMany 返回每个请求 id 对应的记录，nil 表示未缓存.
	GetMany(ctx context.Context, ids []int64) (map[int64]*Photo, error)
	// Invalidate 删除缓存，之后 GetMany 报告未缓存直到重新写入.
	Invalidate(ctx context.Context, ids []int64) error
}

// hashStore 元数据缓存依赖的 KV 能力.
type hashStore interface {
	kv.HashStore
	Delete(ctx context.Context, keys ...string) error
}

// KVMetadataCache 基于 KV hash 的实现.
type KVMetadataCache struct {
	store hashStore
	ttl   time.Duration
}

// NewMetadataCache 创建元数据缓存，ttl<=0 时使用 DefaultPhotoTTL.
func NewMetadataCache(store hashStore, ttl time.Duration) *KVMetadataCache {
	if ttl <= 0 {
		ttl = DefaultPhotoTTL
	}

	return &KVMetadataCache{store: store, ttl: ttl}
}

const (
	fieldUserID     = "user_id"
	fieldFilePath   = "file_path"
	fieldCaption    = "caption"
	fieldHasCaption = "has_caption"
	fieldTags       = "tags"
	fieldUploadedAt = "uploaded_at"
)

func (c *KVMetadataCache) Put(ctx context.Context, photos []Photo) error {
	if len(photos) == 0 {
		return nil
	}

	items := make(map[string]map[string]string, len(photos))

	for _, p := range photos {
		fields, err := encodePhoto(p)
		if err != nil {
			return err
		}

		items[MetadataKey(p.ID)] = fields
	}

	return c.store.HSetMany(ctx, items, c.ttl)
}

func (c *KVMetadataCache) GetMany(ctx context.Context, ids []int64) (map[int64]*Photo, error) {
	out := make(map[int64]*Photo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = MetadataKey(id)
		out[id] = nil
	}

	raw, err := c.store.HGetAllMany(ctx, keys)
	if err != nil {
		return out, err
	}

	for i, id := range ids {
		fields, ok := raw[keys[i]]
		if !ok {
			continue
		}

		p, err := decodePhoto(id, fields)
		if err != nil {
			// 损坏的条目按未缓存处理，回源后会被覆盖
			zerolog.Ctx(ctx).Warn().Err(err).Int64("photo_id", id).Msg("drop corrupt photo metadata")
			continue
		}

		out[id] = p
	}

	return out, nil
}

func (c *KVMetadataCache) Invalidate(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = MetadataKey(id)
	}

	return c.store.Delete(ctx, keys...)
}

func encodePhoto(p Photo) (map[string]string, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	tagsJSON, err := sonic.MarshalString(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags of photo %d: %w", p.ID, err)
	}

	fields := map[string]string{
		fieldUserID:     strconv.FormatInt(p.UserID, 10),
		fieldFilePath:   p.FilePath,
		fieldCaption:    "",
		fieldHasCaption: "0",
		fieldTags:       tagsJSON,
		fieldUploadedAt: p.UploadedAt.UTC().Format(time.RFC3339Nano),
	}

	if p.Caption != nil {
		fields[fieldCaption] = *p.Caption
		fields[fieldHasCaption] = "1"
	}

	return fields, nil
}

func decodePhoto(id int64, fields map[string]string) (*Photo, error) {
	userID, err := strconv.ParseInt(fields[fieldUserID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}

	uploadedAt, err := time.Parse(time.RFC3339Nano, fields[fieldUploadedAt])
	if err != nil {
		return nil, fmt.Errorf("uploaded_at: %w", err)
	}

	tags := []string{}
	if raw := fields[fieldTags]; raw != "" {
		if err := sonic.UnmarshalString(raw, &tags); err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}
	}

	p := &Photo{
		ID:         id,
		UserID:     userID,
		FilePath:   fields[fieldFilePath],
		Tags:       tags,
		UploadedAt: uploadedAt,
	}

	if fields[fieldHasCaption] == "1" {
		caption := fields[fieldCaption]
		p.Caption = &caption
	}

	return p, nil
}

// FetchFunc 批量回源.
type FetchFunc func(ctx context.Context, userID int64, ids []int64) ([]Photo, error)

// ResolvePhotos 按 ids 顺序返回照片. 缺失的记录通过 fetch 回源并尽力写回缓存；
// 无法解析或不属于该用户的 id 被静默丢弃. 缓存读取失败时全部回源.
func ResolvePhotos(ctx context.Context, cache MetadataCache, userID int64, ids []int64, fetch FetchFunc) ([]Photo, error) {
	if len(ids) == 0 {
		return []Photo{}, nil
	}

	log := zerolog.Ctx(ctx)

	cached, err := cache.GetMany(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int("ids", len(ids)).Msg("metadata cache read failed, falling back to source")

		cached = nil
	}

	resolved := make(map[int64]Photo, len(ids))
	missing := make([]int64, 0)

	for _, id := range ids {
		if p := cached[id]; p != nil {
			resolved[id] = *p
			continue
		}

		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := fetch(ctx, userID, missing)
		if err != nil {
			return nil, fmt.Errorf("fetch photos: %w", err)
		}

		if err := cache.Put(ctx, fetched); err != nil {
			log.Warn().Err(err).Int("photos", len(fetched)).Msg("metadata cache write failed")
		}

		for _, p := range fetched {
			resolved[p.ID] = p
		}
	}

	out := make([]Photo, 0, len(ids))

	for _, id := range ids {
		p, ok := resolved[id]
		if !ok || p.UserID != userID {
			continue
		}

		out = append(out, p)
	}

	return out, nil
}
