package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/photovault/pkg/internal/model"
	"github.com/yeisme/photovault/pkg/internal/repository"
	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/internal/types"
	"github.com/yeisme/photovault/pkg/queue"
	"github.com/yeisme/photovault/pkg/rule"
)

// PhotoService 照片登记与修改.
type PhotoService struct {
	db   *gorm.DB
	repo *repository.PhotoRepository
	meta search.MetadataCache
	inv  *Invalidator
	s3   Presigner
	log  zerolog.Logger
}

// Register 登记一张已经存入对象存储的照片.
func (s *PhotoService) Register(ctx context.Context, userID int64, req types.RegisterPhotoRequest) (types.PhotoInfo, error) {
	photo := model.Photo{
		UserID:     userID,
		FilePath:   strings.TrimSpace(req.FilePath),
		Caption:    normalizeCaption(req.Caption),
		UploadedAt: time.Now().UTC(),
	}

	if err := rule.ValidateVar(photo.FilePath, "required,object_key"); err != nil {
		return types.PhotoInfo{}, fmt.Errorf("%w: file_path %q", ErrInvalidPhoto, photo.FilePath)
	}

	tags := search.NormalizeTags(req.Tags)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&photo).Error; err != nil {
			return fmt.Errorf("create photo: %w", err)
		}

		return addTags(tx, userID, photo.ID, tags)
	})
	if err != nil {
		return types.PhotoInfo{}, err
	}

	s.inv.Photos(ctx, queue.TopicPhotoCreated, userID, []int64{photo.ID})

	return s.Get(ctx, userID, photo.ID)
}

// Get 经元数据缓存读取单张照片.
func (s *PhotoService) Get(ctx context.Context, userID, photoID int64) (types.PhotoInfo, error) {
	photos, err := search.ResolvePhotos(ctx, s.meta, userID, []int64{photoID}, s.repo.FindByIDs)
	if err != nil {
		return types.PhotoInfo{}, err
	}

	if len(photos) == 0 {
		return types.PhotoInfo{}, ErrPhotoNotFound
	}

	// 元数据缓存不记录删除状态
	live, err := s.repo.FilterLive(ctx, userID, []int64{photoID}, nil)
	if err != nil {
		return types.PhotoInfo{}, err
	}

	if len(live) == 0 {
		return types.PhotoInfo{}, ErrPhotoNotFound
	}

	return s.Infos(ctx, photos)[0], nil
}

// UpdateCaption 设置或清除 caption.
func (s *PhotoService) UpdateCaption(ctx context.Context, userID, photoID int64, caption *string) error {
	tx := s.db.WithContext(ctx).Model(&model.Photo{}).
		Where("id = ? AND user_id = ?", photoID, userID).
		Updates(map[string]any{"caption": normalizeCaption(caption), "updated_at": time.Now().UTC()})
	if tx.Error != nil {
		return fmt.Errorf("update caption: %w", tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrPhotoNotFound
	}

	s.inv.Photos(ctx, queue.TopicPhotoUpdated, userID, []int64{photoID}, "caption")

	return nil
}

// UpdateTags 增删标签，返回更新后的标签.
func (s *PhotoService) UpdateTags(ctx context.Context, userID, photoID int64, add, remove []string) ([]string, error) {
	remove = search.NormalizeTags(remove)
	add = slices.DeleteFunc(search.NormalizeTags(add), func(t string) bool {
		_, found := slices.BinarySearch(remove, t)
		return found
	})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Photo{}).
			Where("id = ? AND user_id = ?", photoID, userID).
			Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return ErrPhotoNotFound
		}

		if len(remove) > 0 {
			if err := tx.Where("photo_id = ? AND tag_name IN ?", photoID, remove).Delete(&model.PhotoTag{}).Error; err != nil {
				return fmt.Errorf("remove tags: %w", err)
			}
		}

		return addTags(tx, userID, photoID, add)
	})
	if err != nil {
		return nil, err
	}

	s.inv.Photos(ctx, queue.TopicPhotoUpdated, userID, []int64{photoID}, "tags")

	var tags []string
	if err := s.db.WithContext(ctx).Model(&model.PhotoTag{}).
		Where("photo_id = ?", photoID).Order("tag_name").Pluck("tag_name", &tags).Error; err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	if tags == nil {
		tags = []string{}
	}

	return tags, nil
}

// Delete 软删除.
func (s *PhotoService) Delete(ctx context.Context, userID, photoID int64) error {
	tx := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", photoID, userID).Delete(&model.Photo{})
	if tx.Error != nil {
		return fmt.Errorf("delete photo: %w", tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrPhotoNotFound
	}

	s.inv.Photos(ctx, queue.TopicPhotoDeleted, userID, []int64{photoID}, "deleted")

	return nil
}

// Restore 从回收站恢复.
func (s *PhotoService) Restore(ctx context.Context, userID, photoID int64) error {
	tx := s.db.WithContext(ctx).Unscoped().Model(&model.Photo{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NOT NULL", photoID, userID).
		Update("deleted_at", nil)
	if tx.Error != nil {
		return fmt.Errorf("restore photo: %w", tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrPhotoNotFound
	}

	s.inv.Photos(ctx, queue.TopicPhotoRestored, userID, []int64{photoID}, "deleted")

	return nil
}

// Infos 转换为对外结构，启用对象存储时附带预签名地址.
func (s *PhotoService) Infos(ctx context.Context, photos []search.Photo) []types.PhotoInfo {
	out := make([]types.PhotoInfo, len(photos))

	for i, p := range photos {
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}

		out[i] = types.PhotoInfo{
			ID:         p.ID,
			UserID:     p.UserID,
			FilePath:   p.FilePath,
			Caption:    p.Caption,
			Tags:       tags,
			UploadedAt: p.UploadedAt,
		}

		if s.s3 == nil {
			continue
		}

		url, err := s.s3.PresignGet(ctx, p.FilePath)
		if err != nil {
			s.log.Warn().Err(err).Int64("photo_id", p.ID).Msg("presign photo url failed")
			continue
		}

		out[i].URL = url
	}

	return out
}

// addTags 写入词表与照片标签，已存在的忽略.
func addTags(tx *gorm.DB, userID, photoID int64, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	now := time.Now().UTC()
	vocab := make([]model.Tag, len(tags))
	links := make([]model.PhotoTag, len(tags))

	for i, t := range tags {
		vocab[i] = model.Tag{UserID: userID, Name: t, CreatedAt: now}
		links[i] = model.PhotoTag{PhotoID: photoID, TagName: t}
	}

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&vocab).Error; err != nil {
		return fmt.Errorf("upsert tags: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
		return fmt.Errorf("link tags: %w", err)
	}

	return nil
}

// normalizeCaption 去掉首尾空白，空串视为清除.
func normalizeCaption(c *string) *string {
	if c == nil {
		return nil
	}

	v := strings.TrimSpace(*c)
	if v == "" {
		return nil
	}

	return &v
}
