package configs

import (
	"github.com/spf13/viper"
)

// KVConfig 键值存储配置. 搜索缓存依赖 hash 与 sorted set，支持 redis 与 memory 两种实现.
type KVConfig struct {
	Type  string        `mapstructure:"type"  rule:"oneof=memory redis"`
	Redis RedisKVConfig `mapstructure:"redis"`
}

// RedisKVConfig Redis KV 配置.
type RedisKVConfig struct {
	Addr         string `mapstructure:"addr"          rule:"hostname_port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"            rule:"min=0,max=15"`
	PoolSize     int    `mapstructure:"pool_size"     rule:"min=0"`
	DialTimeout  int    `mapstructure:"dial_timeout"  rule:"min=0"` // 秒
	ReadTimeout  int    `mapstructure:"read_timeout"  rule:"min=0"` // 秒
	WriteTimeout int    `mapstructure:"write_timeout" rule:"min=0"` // 秒
}

// GetKVType 返回当前配置的 KV 类型.
func (c *KVConfig) GetKVType() string {
	return c.Type
}

// setDefaults 设置 KV 配置的默认值.
func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", "redis")

	// Redis 默认值
	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.password", "")
	v.SetDefault("kv.redis.db", 0)
	v.SetDefault("kv.redis.pool_size", 0)
	v.SetDefault("kv.redis.dial_timeout", 5)
	v.SetDefault("kv.redis.read_timeout", 3)
	v.SetDefault("kv.redis.write_timeout", 3)
}
