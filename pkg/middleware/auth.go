package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/configs"
	pctx "github.com/yeisme/photovault/pkg/context"
)

const userIDKey = "user_id"

// AuthMiddleware 读取上游网关注入的用户 ID（默认 X-User-ID）.
//   - 认证由网关完成，这里只校验格式并写入 context
//   - 支持通过配置跳过某些路径（如 /metrics, /health）
//   - 开发模式可允许 ?user_id= 兜底（由 configs.auth.dev_allow_query 控制）.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !conf.Enabled || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		raw := strings.TrimSpace(c.GetHeader(conf.UserHeader))
		if raw == "" && conf.DevAllowQuery {
			raw = strings.TrimSpace(c.Query("user_id"))
		}

		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		c.Set(userIDKey, id)
		c.Request = c.Request.WithContext(pctx.WithUserID(c.Request.Context(), id))
		c.Next()
	}
}

// GetUserID 返回已认证用户，未认证时 ok 为 false.
func GetUserID(c *gin.Context) (int64, bool) {
	if id := c.GetInt64(userIDKey); id > 0 {
		return id, true
	}

	return pctx.GetUserID(c.Request.Context())
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
