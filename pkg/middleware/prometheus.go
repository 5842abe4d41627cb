package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/photovault/pkg/metrics"
)

// unmatchedEndpoint 未命中路由的请求统一归到一个标签值.
const unmatchedEndpoint = "unmatched"

// PrometheusMiddleware 记录请求数、耗时、响应大小与并发数.
// endpoint 标签取路由模板(/api/v1/photos/:id)，照片 id 不会进入标签.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.InFlightRequests.Inc()
		defer metrics.InFlightRequests.Dec()

		c.Next()

		method := c.Request.Method
		endpoint := endpointLabel(c)

		metrics.RequestCounter.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())

		// 304 与 HEAD 没有响应体，Size 为 -1
		if size := c.Writer.Size(); size > 0 {
			metrics.ResponseSize.WithLabelValues(method, endpoint).Observe(float64(size))
		}
	}
}

func endpointLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}

	return unmatchedEndpoint
}
