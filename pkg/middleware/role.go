package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/configs"
)

// Role 表示请求方的角色，数值越大权限越高.
type Role int

const (
	RoleAnonymous Role = iota
	RoleUser
	RoleAdmin
)

const roleKey = "role"

// String 返回角色的字符串表示.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	default:
		return "anonymous"
	}
}

// parseRole 未知值降级为 user.
func parseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), "admin") {
		return RoleAdmin
	}

	return RoleUser
}

// RoleMiddleware 确定请求角色，需挂在 AuthMiddleware 之后:
//   - 未识别出用户的请求为 anonymous，角色头被忽略
//   - auth.admin_users 中的用户总是 admin
//   - 其余按角色头解析，缺省为 user
//
// 关闭认证时(本地开发)只看角色头.
func RoleMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(roleKey, resolveRole(c, conf))
		c.Next()
	}
}

func resolveRole(c *gin.Context, conf configs.AuthConfig) Role {
	header := c.GetHeader(conf.RoleHeader)

	if !conf.Enabled {
		return parseRole(header)
	}

	id, ok := GetUserID(c)
	if !ok {
		return RoleAnonymous
	}

	if slices.Contains(conf.AdminUsers, id) {
		return RoleAdmin
	}

	return parseRole(header)
}

// GetRole 从 gin.Context 获取当前请求角色，未经过 RoleMiddleware 时为 anonymous.
func GetRole(c *gin.Context) Role {
	if v, ok := c.Get(roleKey); ok {
		if r, ok := v.(Role); ok {
			return r
		}
	}

	return RoleAnonymous
}

// RequireMinRole 要求最小角色，不满足则返回 403. 用于运维类接口（立即执行任务等）.
func RequireMinRole(minRole Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r := GetRole(c); r < minRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: requires " + minRole.String() + " role"})
			return
		}

		c.Next()
	}
}
