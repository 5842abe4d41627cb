// Package router 管理路由配置，将路径与 handle 中的处理器绑定到 gin 路由组.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/internal/handle"
	"github.com/yeisme/photovault/pkg/middleware"
)

// Register 绑定 /api/v1 下的全部业务路由：
//
//	GET    /photos                 搜索（tags, caption, match, limit, cursor）
//	POST   /photos                 登记照片
//	GET    /photos/:id             单张照片
//	PATCH  /photos/:id/caption     修改 caption
//	PATCH  /photos/:id/tags        增删标签
//	DELETE /photos/:id             软删除
//	PATCH  /photos/:id/restore     恢复
//	GET    /tags                   标签词表
//	GET    /albums                 相册列表
//	POST   /albums                 创建相册
//	DELETE /albums/:id             删除相册
//	PATCH  /albums/:id/restore     恢复相册
//	GET    /albums/:id/photos      相册内搜索
//	POST   /albums/:id/photos      加入照片
//	DELETE /albums/:id/photos      移除照片
//	POST   /trash/purge            清理回收站（admin）
func Register(g *gin.RouterGroup, h *handle.Handler) {
	RegisterPhotoRoutes(g, h)
	RegisterAlbumRoutes(g, h)
	g.GET("/tags", h.ListTags)
	g.POST("/trash/purge", middleware.RequireMinRole(middleware.RoleAdmin), h.PurgeTrash)
}
