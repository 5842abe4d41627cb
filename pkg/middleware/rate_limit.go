package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/metrics"
)

// 限流维度.
const (
	rateKeyGlobal = "global"
	rateKeyIP     = "ip"
	rateKeyUser   = "user"
	rateKeyHeader = "header"
)

// keyedLimiters 按键分配 limiter，闲置超过 idle 的条目在下次清扫时回收.
type keyedLimiters struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*limiterEntry
	swept   time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newKeyedLimiters(cfg configs.RateLimitConfig) *keyedLimiters {
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = configs.DefaultRateLimitIdleTTL
	}

	return &keyedLimiters{
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		idle:    idle,
		entries: make(map[string]*limiterEntry),
		swept:   time.Now(),
	}
}

// get 返回 key 的 limiter. 清扫随请求进行，不需要后台 goroutine.
func (k *keyedLimiters) get(key string, now time.Time) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.swept) >= k.idle {
		for key, e := range k.entries {
			if now.Sub(e.seen) >= k.idle {
				delete(k.entries, key)
			}
		}

		k.swept = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(k.rps, k.burst)}
		k.entries[key] = e
	}

	e.seen = now

	return e.lim
}

func (k *keyedLimiters) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.entries)
}

// RateLimitMiddleware 返回一个基于配置的限流中间件.
// user 维度需挂在 AuthMiddleware 之后，未认证请求按客户端 IP 计.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	mode, header := parseRateKey(cfg.Key)

	if mode == rateKeyGlobal {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

		return func(c *gin.Context) {
			if isSkippedPath(c.Request.URL.Path, cfg.SkipPaths) {
				c.Next()
				return
			}

			if !limiter.Allow() {
				reject(c, mode, cfg.RPS)
				return
			}

			c.Next()
		}
	}

	limiters := newKeyedLimiters(cfg)

	return func(c *gin.Context) {
		if isSkippedPath(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		key := rateKey(c, mode, header)

		if !limiters.get(key, time.Now()).Allow() {
			reject(c, mode, cfg.RPS)
			return
		}

		c.Next()
	}
}

// parseRateKey 解析 global、ip、user、header:Name，未知值按 ip 处理.
func parseRateKey(raw string) (mode, header string) {
	raw = strings.TrimSpace(raw)

	switch lower := strings.ToLower(raw); {
	case lower == "" || lower == rateKeyGlobal:
		return rateKeyGlobal, ""
	case lower == rateKeyUser:
		return rateKeyUser, ""
	case strings.HasPrefix(lower, rateKeyHeader+":"):
		return rateKeyHeader, strings.TrimSpace(raw[len(rateKeyHeader)+1:])
	default:
		return rateKeyIP, ""
	}
}

func rateKey(c *gin.Context, mode, header string) string {
	switch mode {
	case rateKeyUser:
		if id, ok := GetUserID(c); ok {
			return "user:" + strconv.FormatInt(id, 10)
		}
	case rateKeyHeader:
		if v := c.GetHeader(header); v != "" {
			return "header:" + v
		}
	}

	if ip := clientIP(c); ip != "" {
		return "ip:" + ip
	}

	return "unknown"
}

func reject(c *gin.Context, mode string, rps float64) {
	metrics.RateLimited.WithLabelValues(mode).Inc()

	// 至少等待一个令牌的补充时间
	c.Header("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(1/rps)))))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
}

func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}

	return host
}
