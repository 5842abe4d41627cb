package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	pctx "github.com/yeisme/photovault/pkg/context"
)

// GinLoggerMiddleware 使用zerolog记录请求日志，并把带 request_id / trace_id 的 logger 放入请求 context，
// 下游通过 zerolog.Ctx(ctx) 获取.
func GinLoggerMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		l := pctx.WithTraceContext(c.Request.Context(), base).With().
			Str("request_id", GetRequestID(c)).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		// 执行下一个中间件/处理器
		c.Next()

		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		var event *zerolog.Event

		switch {
		case status >= 500:
			event = l.Error()
		case status >= 400:
			event = l.Warn()
		default:
			event = l.Info()
		}

		event = event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client_ip", c.ClientIP())

		if id, ok := GetUserID(c); ok {
			event = event.Int64("user_id", id)
		}

		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.Msg("HTTP request")
	}
}
