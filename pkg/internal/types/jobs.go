package types

import "time"

// PurgeTrashRequest 手动清理回收站，字段缺省时使用 jobs.trash_purge 配置.
type PurgeTrashRequest struct {
	RetentionDays *int `form:"retention_days" binding:"omitempty,min=0"`
	BatchSize     int  `form:"batch_size"     binding:"omitempty,min=1,max=10000"`
}

// PurgeResult 回收站清理结果.
type PurgeResult struct {
	Purged int       `json:"purged"`
	Before time.Time `json:"before"`
}
