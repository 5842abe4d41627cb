package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultRateLimitRPS     = 50.0
	DefaultRateLimitBurst   = 100
	DefaultRateLimitIdleTTL = 10 * time.Minute
)

// RateLimitConfig 令牌桶限流. RPS 是每个键的稳定速率，Burst 是允许的瞬时突发.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"gt=0"`
	Burst   int     `mapstructure:"burst" rule:"min=1"`
	// Key: global | ip | user | header:<Name>，user 未认证时退化为 ip
	Key     string        `mapstructure:"key" rule:"required"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
	// SkipPaths 前缀匹配，探活与指标不计入限流
	SkipPaths []string `mapstructure:"skip_paths"`
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", DefaultRateLimitBurst)
	v.SetDefault("rate_limit.key", "user")
	v.SetDefault("rate_limit.idle_ttl", DefaultRateLimitIdleTTL)
	v.SetDefault("rate_limit.skip_paths", []string{"/health", "/api/v1/health"})
}
