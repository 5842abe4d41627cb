package search

import "errors"

var (
	// ErrInvalidCursor 游标无法解析，或排序查询缺少 rank.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrTooManyFilters 标签数量超过上限.
	ErrTooManyFilters = errors.New("too many tag filters")
	// ErrInvalidMatch match 只能是 any 或 all.
	ErrInvalidMatch = errors.New("invalid match mode")
	// ErrInvalidLimit limit 超出允许范围.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrCaptionTooLong caption 查询串过长.
	ErrCaptionTooLong = errors.New("caption query too long")
	// ErrInvalidScope album 范围非法.
	ErrInvalidScope = errors.New("invalid album scope")
)
