package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/yeisme/photovault/pkg/queue"
)

// TrashService 回收站清理.
type TrashService struct {
	db  *gorm.DB
	inv *Invalidator
	log zerolog.Logger
}

type trashedRow struct {
	ID     int64
	UserID int64
}

// Purge 永久删除 before 之前软删除的照片，每批 batch 条，返回删除总数.
// 标签与相册关联由外键级联删除.
func (s *TrashService) Purge(ctx context.Context, before time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}

	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var rows []trashedRow

		err := s.db.WithContext(ctx).Raw(`SELECT id, user_id FROM photos
WHERE deleted_at IS NOT NULL AND deleted_at < ?
ORDER BY deleted_at, id
LIMIT ?`, before, batch).Scan(&rows).Error
		if err != nil {
			return total, fmt.Errorf("select trashed photos: %w", err)
		}

		if len(rows) == 0 {
			return total, nil
		}

		ids := make([]int64, len(rows))
		byUser := make(map[int64][]int64)

		for i, r := range rows {
			ids[i] = r.ID
			byUser[r.UserID] = append(byUser[r.UserID], r.ID)
		}

		// 只删仍在回收站中的，期间被恢复的跳过
		tx := s.db.WithContext(ctx).Exec("DELETE FROM photos WHERE id IN ? AND deleted_at IS NOT NULL", ids)
		if tx.Error != nil {
			return total, fmt.Errorf("purge photos: %w", tx.Error)
		}

		total += int(tx.RowsAffected)

		for userID, photoIDs := range byUser {
			s.inv.Photos(ctx, queue.TopicPhotoPurged, userID, photoIDs)
		}

		s.log.Debug().Int("batch", len(rows)).Int64("deleted", tx.RowsAffected).Msg("trash purge batch")

		if len(rows) < batch {
			return total, nil
		}
	}
}

// PurgeOlderThan 按保留天数清理.
func (s *TrashService) PurgeOlderThan(ctx context.Context, retention time.Duration, batch int) (int, time.Time, error) {
	before := time.Now().UTC().Add(-retention)
	n, err := s.Purge(ctx, before, batch)

	return n, before, err
}

