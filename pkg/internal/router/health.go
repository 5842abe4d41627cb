package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/internal/handle"
)

// RegisterHealthCheckRoute 注册健康检查路由.
//
//	GET /health/ready        全部依赖，db 失败 503，其余失败 degraded
//	GET /health/:component   db | kv | mq | s3
func RegisterHealthCheckRoute(g *gin.RouterGroup) {
	healthRoutes := g.Group("/health")
	{
		healthRoutes.GET("/ready", handle.HealthReady)
		healthRoutes.GET("/:component", handle.HealthComponent)
	}
}
