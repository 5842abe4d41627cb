package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/internal/handle"
	"github.com/yeisme/photovault/pkg/middleware"
)

// RegisterPhotoRoutes 注册照片相关路由.
func RegisterPhotoRoutes(g *gin.RouterGroup, h *handle.Handler) {
	photos := g.Group("/photos")
	{
		photos.GET("", middleware.ETagMiddleware(middleware.DefaultMaxETagBody), h.SearchPhotos)
		photos.POST("", h.RegisterPhoto)

		single := photos.Group("/:id")
		{
			single.GET("", h.GetPhoto)
			single.DELETE("", h.DeletePhoto)
			single.PATCH("/caption", h.UpdateCaption)
			single.PATCH("/tags", h.UpdateTags)
			single.PATCH("/restore", h.RestorePhoto)
		}
	}
}

// RegisterAlbumRoutes 注册相册相关路由.
func RegisterAlbumRoutes(g *gin.RouterGroup, h *handle.Handler) {
	albums := g.Group("/albums")
	{
		albums.GET("", h.ListAlbums)
		albums.POST("", h.CreateAlbum)
		albums.DELETE("/:id", h.DeleteAlbum)
		albums.PATCH("/:id/restore", h.RestoreAlbum)
		albums.GET("/:id/photos", middleware.ETagMiddleware(middleware.DefaultMaxETagBody), h.SearchAlbumPhotos)
		albums.POST("/:id/photos", h.AddAlbumPhotos)
		albums.DELETE("/:id/photos", h.RemoveAlbumPhotos)
	}
}
