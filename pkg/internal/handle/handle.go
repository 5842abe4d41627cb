// Package handle 提供 HTTP 请求处理器.
package handle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/internal/search"
	"github.com/yeisme/photovault/pkg/internal/service"
	"github.com/yeisme/photovault/pkg/middleware"
	"github.com/yeisme/photovault/pkg/rule"
)

// Handler 持有进程内共享的服务.
type Handler struct {
	svc *service.Services
}

func init() {
	// 请求结构体的 binding 标签依赖 object_key、photo_tag
	if err := rule.RegisterGinValidations(); err != nil {
		panic(err)
	}
}

// New 创建处理器.
func New(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

// DefaultHandler 未实现的接口.
func DefaultHandler(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"message": "Not Implemented"})
}

// currentUser 由 AuthMiddleware 写入，缺失时返回 401.
func currentUser(c *gin.Context) (int64, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}

	return id, ok
}

// idParam 解析正整数路径参数.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}

	return id, true
}

// writeError 将服务层错误映射为状态码. 查询参数错误为 400，资源不存在为 404，其余为 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidCursor),
		errors.Is(err, search.ErrTooManyFilters),
		errors.Is(err, search.ErrInvalidMatch),
		errors.Is(err, search.ErrInvalidLimit),
		errors.Is(err, search.ErrCaptionTooLong),
		errors.Is(err, search.ErrInvalidScope):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPhoto):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPhotoNotFound), errors.Is(err, service.ErrAlbumNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindJSON 解析请求体，失败时返回 400.
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}

	return true
}
