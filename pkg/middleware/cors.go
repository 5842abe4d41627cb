package middleware

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/configs"
)

// CORSMiddleware CORS中间件. 放行身份头与条件请求头，暴露 ETag 供前端做分页缓存.
func CORSMiddleware(server configs.ServerConfig, auth configs.AuthConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()

	if len(server.CORSOrigins) == 0 || slices.Contains(server.CORSOrigins, "*") || server.Debug {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = server.CORSOrigins
	}

	config.AddAllowHeaders(auth.UserHeader, auth.RoleHeader, HeaderRequestID, "If-None-Match")
	config.AddExposeHeaders("ETag", "Retry-After", HeaderRequestID, HeaderTraceID)
	config.AddAllowMethods("PATCH")

	if server.Debug {
		config.MaxAge = 0
	}

	return cors.New(config)
}
