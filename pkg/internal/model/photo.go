// Package model 定义数据库模型. 表结构由 migrations 维护，模型仅用于 gorm 读写.
package model

import (
	"time"

	"gorm.io/gorm"
)

// Photo 照片记录.
type Photo struct {
	ID       int64  `gorm:"primaryKey"         json:"id"`
	UserID   int64  `gorm:"index;not null"     json:"user_id"`
	FilePath string `gorm:"type:text;not null" json:"file_path"`
	// Caption 为空表示没有描述，与空字符串区分
	Caption    *string        `gorm:"type:text"   json:"caption"`
	UploadedAt time.Time      `gorm:"not null"    json:"uploaded_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index"       json:"-"`
}

func (Photo) TableName() string { return "photos" }

// PhotoTag 照片与标签名的关联.
type PhotoTag struct {
	PhotoID int64  `gorm:"primaryKey"`
	TagName string `gorm:"primaryKey;type:text"`
}

func (PhotoTag) TableName() string { return "photo_tags" }

// Tag 用户的标签词表.
type Tag struct {
	UserID    int64  `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey;type:text"`
	CreatedAt time.Time
}

func (Tag) TableName() string { return "tags" }
