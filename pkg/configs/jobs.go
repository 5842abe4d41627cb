package configs

import "github.com/spf13/viper"

// JobsConfig 定时任务配置.
type JobsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	TrashPurge TrashPurgeConfig `mapstructure:"trash_purge"`
}

// TrashPurgeConfig 回收站清理任务，永久删除超过保留期的软删除照片.
type TrashPurgeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Cron          string `mapstructure:"cron"           rule:"required"`
	RetentionDays int    `mapstructure:"retention_days" rule:"min=1"`
	BatchSize     int    `mapstructure:"batch_size"     rule:"min=1,max=10000"`
}

func (c *JobsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.trash_purge.enabled", true)
	v.SetDefault("jobs.trash_purge.cron", "0 3 * * *")
	v.SetDefault("jobs.trash_purge.retention_days", 30)
	v.SetDefault("jobs.trash_purge.batch_size", 500)
}
