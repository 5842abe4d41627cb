package jobs

import (
	"fmt"

	"github.com/yeisme/photovault/pkg/configs"
)

// 任务名称常量，前缀同时作为 gocron 的 tag.
const (
	JobTrashPurge = "trash.purge"
)

// Spec 描述一个已配置的任务，供 CLI 与日志展示.
type Spec struct {
	Name    string
	Cron    string
	Enabled bool
	Detail  string
}

// Specs 按配置列出全部任务，未启用的也会列出.
func Specs(cfg configs.JobsConfig) []Spec {
	return []Spec{
		{
			Name:    JobTrashPurge,
			Cron:    cfg.TrashPurge.Cron,
			Enabled: cfg.Enabled && cfg.TrashPurge.Enabled,
			Detail:  fmt.Sprintf("retention=%dd batch=%d", cfg.TrashPurge.RetentionDays, cfg.TrashPurge.BatchSize),
		},
	}
}
