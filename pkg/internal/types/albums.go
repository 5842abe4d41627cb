package types

import "time"

// CreateAlbumRequest 创建相册.
type CreateAlbumRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

// AlbumInfo 相册.
type AlbumInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListAlbumsResponse 用户的相册.
type ListAlbumsResponse struct {
	Albums []AlbumInfo `json:"albums"`
}

// AddAlbumPhotosRequest 批量加入照片，不属于当前用户或已删除的照片被忽略.
type AddAlbumPhotosRequest struct {
	PhotoIDs []int64 `json:"photo_ids" binding:"required,min=1,max=500"`
}
