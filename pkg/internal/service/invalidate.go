package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/cache"
	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/metrics"
	"github.com/yeisme/photovault/pkg/queue"
)

// producer 事件头中的生产者名.
const producer = "photovault"

// Invalidator 照片变更后的缓存失效.
//
// 失效范围：照片元数据 photo:{id}、该用户全部搜索结果（含完整标记）与标签词表.
// 搜索结果无法按照片精确定位，所以整用户清空.
type Invalidator struct {
	meta  search.MetadataCache
	cache *cache.Cache
	pub   Publisher
	log   zerolog.Logger
}

// NewInvalidator pub 为空时只做本地失效.
func NewInvalidator(meta search.MetadataCache, c *cache.Cache, pub Publisher, l zerolog.Logger) *Invalidator {
	return &Invalidator{meta: meta, cache: c, pub: pub, log: l}
}

// Local 仅失效本地可见的缓存，不发布事件. 事件消费者调用它.
func (iv *Invalidator) Local(ctx context.Context, userID int64, photoIDs []int64) error {
	var errs []error

	if len(photoIDs) > 0 {
		if err := iv.meta.Invalidate(ctx, photoIDs); err != nil {
			errs = append(errs, fmt.Errorf("invalidate metadata: %w", err))
		} else {
			metrics.CacheInvalidations.WithLabelValues("metadata").Add(float64(len(photoIDs)))
		}
	}

	if userID > 0 {
		if n, err := iv.cache.Clear(ctx, search.SearchKeyPattern(userID)); err != nil {
			errs = append(errs, fmt.Errorf("clear search results: %w", err))
		} else {
			metrics.CacheInvalidations.WithLabelValues("search").Add(float64(n))
		}

		if err := iv.cache.Delete(ctx, search.TagListKey(userID)); err != nil {
			errs = append(errs, fmt.Errorf("drop tag list: %w", err))
		} else {
			metrics.CacheInvalidations.WithLabelValues("tags").Inc()
		}
	}

	return errors.Join(errs...)
}

// Photos 失效并广播照片变更. 缓存失败只记录日志：删除状态在命中时仍会回库复核.
func (iv *Invalidator) Photos(ctx context.Context, topic string, userID int64, photoIDs []int64, fields ...string) {
	l := iv.log.With().Str("topic", topic).Int64("user_id", userID).Logger()

	if err := iv.Local(ctx, userID, photoIDs); err != nil {
		l.Error().Err(err).Ints64("photo_ids", photoIDs).Msg("cache invalidation failed")
	}

	if iv.pub == nil {
		return
	}

	err := queue.PublishPhotoChanged(ctx, iv.pub, topic, queue.PhotoChangedPayload{
		UserID:   userID,
		PhotoIDs: photoIDs,
		Fields:   fields,
		Origin:   instanceID,
	}, queue.WithProducer(producer))
	if err != nil {
		l.Warn().Err(err).Msg("publish photo event failed")
	}
}

// Album 相册成员或状态变化. 只影响搜索结果，元数据不变.
func (iv *Invalidator) Album(ctx context.Context, userID, albumID int64, photoIDs []int64) {
	l := iv.log.With().Int64("user_id", userID).Int64("album_id", albumID).Logger()

	if err := iv.Local(ctx, userID, nil); err != nil {
		l.Error().Err(err).Msg("cache invalidation failed")
	}

	if iv.pub == nil {
		return
	}

	err := queue.PublishAlbumChanged(ctx, iv.pub, queue.AlbumChangedPayload{
		UserID:   userID,
		AlbumID:  albumID,
		PhotoIDs: photoIDs,
		Origin:   instanceID,
	}, queue.WithProducer(producer))
	if err != nil {
		l.Warn().Err(err).Msg("publish album event failed")
	}
}
