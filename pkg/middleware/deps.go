package middleware

import (
	"github.com/gin-gonic/gin"

	pctx "github.com/yeisme/photovault/pkg/context"
	"github.com/yeisme/photovault/pkg/internal/storage"
	"github.com/yeisme/photovault/pkg/scheduler"
)

const schedulerKey = "scheduler"

// StorageMiddleware 把存储管理器放进 request context，health 处理器经 pctx.GetManager 读取.
// manager 为 nil 时不注入，探测结果为未配置.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	if manager == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(pctx.WithStorageManager(c.Request.Context(), manager))
		c.Next()
	}
}

// SchedulerMiddleware 把调度器挂到 gin.Context. jobs 未启用时 sched 为 nil.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sched != nil {
			c.Set(schedulerKey, sched)
		}

		c.Next()
	}
}

// GetScheduler 未注入时返回 nil.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	sched, _ := c.Value(schedulerKey).(*scheduler.Scheduler)
	return sched
}
