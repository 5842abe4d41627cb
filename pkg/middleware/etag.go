package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
)

// DefaultMaxETagBody 超过该大小的响应直接透传，不计算 ETag.
const DefaultMaxETagBody = 1 << 20

// etagWriter 缓冲响应体，结束后统一写出.
type etagWriter struct {
	gin.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *etagWriter) WriteHeader(code int) { w.status = code }

func (w *etagWriter) WriteHeaderNow() {}

func (w *etagWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *etagWriter) WriteString(s string) (int, error) { return w.buf.WriteString(s) }

func (w *etagWriter) Status() int { return w.status }

func (w *etagWriter) Size() int { return w.buf.Len() }

func (w *etagWriter) Written() bool { return w.buf.Len() > 0 }

// ETagMiddleware 为 GET 的 200 响应计算弱 ETag（xxhash），If-None-Match 命中时返回 304.
// 搜索结果是否来自缓存不影响 ETag，只取决于响应内容.
func ETagMiddleware(maxBody int) gin.HandlerFunc {
	if maxBody <= 0 {
		maxBody = DefaultMaxETagBody
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		orig := c.Writer
		w := &etagWriter{ResponseWriter: orig, status: http.StatusOK}
		c.Writer = w

		c.Next()

		c.Writer = orig

		body := w.buf.Bytes()
		if w.status != http.StatusOK || len(body) > maxBody {
			orig.WriteHeader(w.status)
			_, _ = orig.Write(body)

			return
		}

		etag := `W/"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
		orig.Header().Set("ETag", etag)

		if match(c.GetHeader("If-None-Match"), etag) {
			orig.WriteHeader(http.StatusNotModified)
			return
		}

		orig.WriteHeader(http.StatusOK)
		_, _ = orig.Write(body)
	}
}

func match(header, etag string) bool {
	if header == "" {
		return false
	}

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag || "W/"+candidate == etag {
			return true
		}
	}

	return false
}
