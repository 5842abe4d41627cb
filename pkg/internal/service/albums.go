package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/photovault/pkg/internal/model"
	"github.com/yeisme/photovault/pkg/internal/types"
)

// AlbumService 相册. 相册只作为搜索范围，不参与排序.
type AlbumService struct {
	db  *gorm.DB
	inv *Invalidator
}

// Create 创建相册.
func (s *AlbumService) Create(ctx context.Context, userID int64, name string) (types.AlbumInfo, error) {
	album := model.Album{UserID: userID, Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	if album.Name == "" {
		return types.AlbumInfo{}, errors.New("album name is required")
	}

	if err := s.db.WithContext(ctx).Create(&album).Error; err != nil {
		return types.AlbumInfo{}, fmt.Errorf("create album: %w", err)
	}

	return types.AlbumInfo{ID: album.ID, Name: album.Name, CreatedAt: album.CreatedAt}, nil
}

// Get 读取未删除且属于该用户的相册.
func (s *AlbumService) Get(ctx context.Context, userID, albumID int64) (types.AlbumInfo, error) {
	var album model.Album

	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", albumID, userID).Take(&album).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AlbumInfo{}, ErrAlbumNotFound
	}

	if err != nil {
		return types.AlbumInfo{}, fmt.Errorf("get album: %w", err)
	}

	return types.AlbumInfo{ID: album.ID, Name: album.Name, CreatedAt: album.CreatedAt}, nil
}

// List 列出用户未删除的相册，新建的在前.
func (s *AlbumService) List(ctx context.Context, userID int64) ([]types.AlbumInfo, error) {
	var albums []model.Album

	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}

	out := make([]types.AlbumInfo, len(albums))
	for i, a := range albums {
		out[i] = types.AlbumInfo{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt}
	}

	return out, nil
}

// AddPhotos 把照片加入相册，返回新加入的数量.
func (s *AlbumService) AddPhotos(ctx context.Context, userID, albumID int64, photoIDs []int64) (int, error) {
	if _, err := s.Get(ctx, userID, albumID); err != nil {
		return 0, err
	}

	if len(photoIDs) == 0 {
		return 0, nil
	}

	tx := s.db.WithContext(ctx).Exec(`INSERT INTO album_photos (album_id, photo_id, added_at)
SELECT ?, p.id, now() FROM photos p
WHERE p.id IN ? AND p.user_id = ? AND p.deleted_at IS NULL
ON CONFLICT DO NOTHING`, albumID, photoIDs, userID)
	if tx.Error != nil {
		return 0, fmt.Errorf("add album photos: %w", tx.Error)
	}

	if tx.RowsAffected > 0 {
		s.inv.Album(ctx, userID, albumID, photoIDs)
	}

	return int(tx.RowsAffected), nil
}

// RemovePhotos 从相册移除照片.
func (s *AlbumService) RemovePhotos(ctx context.Context, userID, albumID int64, photoIDs []int64) (int, error) {
	if _, err := s.Get(ctx, userID, albumID); err != nil {
		return 0, err
	}

	tx := s.db.WithContext(ctx).
		Where("album_id = ? AND photo_id IN ?", albumID, photoIDs).
		Delete(&model.AlbumPhoto{})
	if tx.Error != nil {
		return 0, fmt.Errorf("remove album photos: %w", tx.Error)
	}

	if tx.RowsAffected > 0 {
		s.inv.Album(ctx, userID, albumID, photoIDs)
	}

	return int(tx.RowsAffected), nil
}

// Delete 软删除相册. 关联保留，相册范围的搜索随即为空.
func (s *AlbumService) Delete(ctx context.Context, userID, albumID int64) error {
	tx := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", albumID, userID).Delete(&model.Album{})
	if tx.Error != nil {
		return fmt.Errorf("delete album: %w", tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrAlbumNotFound
	}

	s.inv.Album(ctx, userID, albumID, nil)

	return nil
}

// Restore 恢复软删除的相册，相册范围的搜索缓存随之失效.
func (s *AlbumService) Restore(ctx context.Context, userID, albumID int64) error {
	tx := s.db.WithContext(ctx).Unscoped().Model(&model.Album{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NOT NULL", albumID, userID).
		Update("deleted_at", nil)
	if tx.Error != nil {
		return fmt.Errorf("restore album: %w", tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrAlbumNotFound
	}

	s.inv.Album(ctx, userID, albumID, nil)

	return nil
}
