// Package api 组装 HTTP 路由：/api/v1 业务接口、健康检查与调度器管理接口.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/internal/handle"
	"github.com/yeisme/photovault/pkg/internal/router"
	"github.com/yeisme/photovault/pkg/internal/service"
)

// BasePath 业务接口前缀.
const BasePath = "/api/v1"

// RegisterGroup 注册全部路由到传入的 gin 引擎.
func RegisterGroup(e *gin.Engine, svcs *service.Services) *gin.Engine {
	v1 := e.Group(BasePath)

	router.Register(v1, handle.New(svcs))
	router.RegisterHealthCheckRoute(v1)
	router.RegisterSchedulerRoutes(v1)

	e.GET("/health", handle.DefaultHandler)
	e.NoRoute(handle.DefaultHandler)

	return e
}
