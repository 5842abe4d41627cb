// Package jobs 负责注册与实现业务定时任务（基于 scheduler）.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/scheduler"
)

// Purger 回收站清理，*service.TrashService 满足该接口.
type Purger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration, batch int) (int, time.Time, error)
}

// RegisterCronJobs 按配置注册业务定时任务：
//   - trash.purge：永久删除超过保留期的软删除照片（默认每天 03:00，保留 30 天）
func RegisterCronJobs(ctx context.Context, sched *scheduler.Scheduler, cfg configs.JobsConfig, trash Purger, l zerolog.Logger) error {
	if sched == nil {
		return errors.New("scheduler is nil")
	}

	if !cfg.Enabled {
		return nil
	}

	if cfg.TrashPurge.Enabled {
		if trash == nil {
			return errors.New("trash service is nil")
		}

		if err := sched.AddCron(ctx, JobTrashPurge, cfg.TrashPurge.Cron, TrashPurge(trash, cfg.TrashPurge, l)); err != nil {
			return err
		}
	}

	return nil
}

// TrashPurge 返回回收站清理任务.
func TrashPurge(trash Purger, cfg configs.TrashPurgeConfig, l zerolog.Logger) scheduler.JobFunc {
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	return func(ctx context.Context) error {
		n, before, err := trash.PurgeOlderThan(ctx, retention, cfg.BatchSize)
		if err != nil {
			return err
		}

		if n > 0 {
			l.Info().Str("job", JobTrashPurge).Int("purged", n).Time("before", before).Msg("purged trashed photos")
		}

		return nil
	}
}
