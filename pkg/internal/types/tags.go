package types

// TagCount 标签及其未删除照片数量.
type TagCount struct {
	Name  string `json:"name"  gorm:"column:name"`
	Count int64  `json:"count" gorm:"column:count"`
}

// ListTagsResponse 标签词表.
type ListTagsResponse struct {
	Tags []TagCount `json:"tags"`
}
