package search

import (
	"context"
	"time"
)

// Photo 搜索与缓存的基本单元.
type Photo struct {
	ID         int64
	UserID     int64
	FilePath   string
	Caption    *string
	Tags       []string // 已排序
	UploadedAt time.Time
}

// Page 一次分页读取的参数.
type Page struct {
	Cursor  *Cursor
	Limit   int
	AlbumID *int64
}

// Source 关系型数据源. 每种查询都读取 limit+1 行，仅在还有下一行时返回 next 游标.
type Source interface {
	// ListIDs 无过滤，uploaded_at DESC, id DESC.
	ListIDs(ctx context.Context, userID int64, page Page) ([]int64, *Cursor, error)
	// FindByTags 标签过滤，返回完整记录，排序同 ListIDs.
	FindByTags(ctx context.Context, userID int64, tags []string, match MatchMode, page Page) ([]Photo, *Cursor, error)
	// SearchCaption caption 全文检索，rank DESC, id DESC.
	SearchCaption(ctx context.Context, userID int64, terms []string, match MatchMode, page Page) ([]Entry, *Cursor, error)
	// SearchCombined caption 与标签组合检索，排序同 SearchCaption.
	SearchCombined(ctx context.Context, userID int64, terms, tags []string, match MatchMode, page Page) ([]Entry, *Cursor, error)
	// FindByIDs 批量读取存在、属于该用户且未删除的记录，其余静默忽略.
	FindByIDs(ctx context.Context, userID int64, ids []int64) ([]Photo, error)
	// FilterLive 返回仍然存活、属于该用户且在 album 范围内的 id 子集.
	FilterLive(ctx context.Context, userID int64, ids []int64, albumID *int64) ([]int64, error)
}
