package model

import (
	"time"

	"gorm.io/gorm"
)

// Album 相册，只作为搜索范围使用.
type Album struct {
	ID        int64          `gorm:"primaryKey"         json:"id"`
	UserID    int64          `gorm:"index;not null"     json:"user_id"`
	Name      string         `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"              json:"-"`
}

func (Album) TableName() string { return "albums" }

// AlbumPhoto 相册与照片的关联.
type AlbumPhoto struct {
	AlbumID int64 `gorm:"primaryKey"`
	PhotoID int64 `gorm:"primaryKey"`
	AddedAt time.Time
}

func (AlbumPhoto) TableName() string { return "album_photos" }
