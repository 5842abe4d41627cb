package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/photovault/pkg/cache"
	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/internal/types"
)

// TagService 用户标签词表.
type TagService struct {
	db    *gorm.DB
	cache *cache.Cache
	ttl   time.Duration
}

// List 返回标签及未删除照片数，按数量降序. 结果缓存于 user:{uid}:tags，照片变更时失效.
func (s *TagService) List(ctx context.Context, userID int64) ([]types.TagCount, error) {
	return cache.GetOrSet(ctx, s.cache, search.TagListKey(userID), func() ([]types.TagCount, error) {
		var rows []types.TagCount

		err := s.db.WithContext(ctx).Raw(`SELECT t.name, COUNT(p.id) AS count
FROM tags t
LEFT JOIN photo_tags pt ON pt.tag_name = t.name
LEFT JOIN photos p ON p.id = pt.photo_id AND p.user_id = t.user_id AND p.deleted_at IS NULL
WHERE t.user_id = ?
GROUP BY t.name
ORDER BY count DESC, t.name`, userID).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}

		if rows == nil {
			rows = []types.TagCount{}
		}

		return rows, nil
	}, s.ttl)
}
