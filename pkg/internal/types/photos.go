// Package types 定义应用程序中使用的各种数据类型和结构体. 主要为 Request 和 Response 结构体.
package types

import "time"

// PhotoInfo 照片的对外表示.
type PhotoInfo struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	FilePath   string    `json:"file_path"`
	Caption    *string   `json:"caption"`
	Tags       []string  `json:"tags"`
	UploadedAt time.Time `json:"uploaded_at"`
	// URL 预签名下载地址，未启用对象存储时省略
	URL string `json:"url,omitempty"`
}

// SearchPhotosRequest 搜索参数，全部来自 query string.
//
//	GET /api/v1/photos?tags=cat&tags=dog&caption=beach&match=all&limit=20&cursor=...
//
// tags 也接受逗号分隔. cursor 为不透明 token；兼容旧客户端的 cursor_id/cursor_rank.
type SearchPhotosRequest struct {
	Tags       []string `form:"tags"`
	Caption    string   `form:"caption"`
	Match      string   `form:"match"`
	Limit      int      `form:"limit"`
	Cursor     string   `form:"cursor"`
	CursorID   string   `form:"cursor_id"`
	CursorRank string   `form:"cursor_rank"`
}

// NextCursor 下一页游标. Token 可原样传回 cursor 参数.
type NextCursor struct {
	ID    int64    `json:"id"`
	Rank  *float64 `json:"rank,omitempty"`
	Token string   `json:"token"`
}

// SearchPhotosResponse 搜索响应，nextCursor 为 null 表示没有更多.
type SearchPhotosResponse struct {
	Photos     []PhotoInfo `json:"photos"`
	NextCursor *NextCursor `json:"nextCursor"`
}

// RegisterPhotoRequest 登记一张已上传的照片. 文件传输不在本服务内完成.
type RegisterPhotoRequest struct {
	FilePath string   `json:"file_path" binding:"required,max=1024,object_key"`
	Caption  *string  `json:"caption"   binding:"omitempty,max=2000"`
	Tags     []string `json:"tags"      binding:"omitempty,max=50,dive,photo_tag"`
}

// UpdateCaptionRequest caption 为 null 时清除.
type UpdateCaptionRequest struct {
	Caption *string `json:"caption" binding:"omitempty,max=2000"`
}

// UpdateTagsRequest 增删标签，同一标签同时出现在两侧时以 remove 为准.
type UpdateTagsRequest struct {
	Add    []string `json:"add"    binding:"omitempty,max=50,dive,photo_tag"`
	Remove []string `json:"remove" binding:"omitempty,max=50,dive,photo_tag"`
}

// ActionResponse 通用动作响应.
type ActionResponse struct {
	Affected int    `json:"affected"`
	Message  string `json:"message,omitempty"`
}
