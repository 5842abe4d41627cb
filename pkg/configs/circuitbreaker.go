package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// 默认熔断器配置.
	DefaultCBFailureRate       = 0.5
	DefaultCBMinRequests       = 20
	DefaultCBInterval          = time.Minute
	DefaultCBOpenTimeout       = 30 * time.Second
	DefaultCBMaxRequestsInHalf = 5
)

// CircuitBreakerConfig 熔断器配置. HTTP 中间件与 KV 缓存各自持有一个熔断器，共用这组阈值.
type CircuitBreakerConfig struct {
	// Enabled 控制 HTTP 熔断，KV 控制缓存访问熔断(打开时搜索直接回源)
	Enabled     bool    `mapstructure:"enabled"`
	KV          bool    `mapstructure:"kv"`
	FailureRate float64 `mapstructure:"failure_rate" rule:"min=0,max=1"`
	MinRequests uint32  `mapstructure:"min_requests"`
	// Interval 闭合状态下计数清零周期，0 表示不清零
	Interval    time.Duration `mapstructure:"interval"     rule:"min=0"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" rule:"min=0"`
	// MaxRequestsInHalf 半开状态允许的并发探测请求数
	MaxRequestsInHalf uint32 `mapstructure:"max_requests_in_half"`
	// SkipPaths 不参与 HTTP 熔断的路径前缀
	SkipPaths []string `mapstructure:"skip_paths"`
}

// ShouldTrip 报告当前窗口内的计数是否达到打开条件.
func (c CircuitBreakerConfig) ShouldTrip(requests, failures uint32) bool {
	if requests == 0 || requests < c.MinRequests {
		return false
	}

	return float64(failures)/float64(requests) >= c.FailureRate
}

// RetryAfter 熔断打开时建议客户端的重试间隔，至少 1 秒.
func (c CircuitBreakerConfig) RetryAfter() time.Duration {
	if c.OpenTimeout < time.Second {
		return time.Second
	}

	return c.OpenTimeout.Truncate(time.Second)
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.kv", true)
	v.SetDefault("circuit_breaker.failure_rate", DefaultCBFailureRate)
	v.SetDefault("circuit_breaker.min_requests", DefaultCBMinRequests)
	v.SetDefault("circuit_breaker.interval", DefaultCBInterval)
	v.SetDefault("circuit_breaker.open_timeout", DefaultCBOpenTimeout)
	v.SetDefault("circuit_breaker.max_requests_in_half", DefaultCBMaxRequestsInHalf)
	v.SetDefault("circuit_breaker.skip_paths", []string{"/health", "/api/v1/health"})
}
