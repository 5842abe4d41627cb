package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultSearchLimit    = 20
	DefaultSearchMaxLimit = 50
	DefaultMaxTagFilters  = 10
	DefaultMaxCaptionLen  = 256
	DefaultPhotoTTL       = 12 * time.Hour
	DefaultResultTTL      = 5 * time.Minute
	DefaultTagListTTL     = 10 * time.Minute
)

// SearchConfig 搜索分页与缓存策略.
type SearchConfig struct {
	DefaultLimit     int           `mapstructure:"default_limit"      rule:"min=1,ltefield=MaxLimit"`
	MaxLimit         int           `mapstructure:"max_limit"          rule:"min=1,max=500"`
	MaxTagFilters    int           `mapstructure:"max_tag_filters"    rule:"min=1"`
	MaxCaptionLength int           `mapstructure:"max_caption_length" rule:"min=1"`
	PhotoTTL         time.Duration `mapstructure:"photo_ttl"`    // photo:{id} 元数据缓存
	ResultTTL        time.Duration `mapstructure:"result_ttl"`   // 结果 ID 列表
	CompleteTTL      time.Duration `mapstructure:"complete_ttl"` // 完整标记，0 表示与 ResultTTL 相同
	TagListTTL       time.Duration `mapstructure:"tag_list_ttl"`
	// SingleFlight 合并同一 key 的并发回源
	SingleFlight bool `mapstructure:"single_flight"`
	// CacheDisabled 完全绕过结果缓存，排障用
	CacheDisabled bool `mapstructure:"cache_disabled"`
}

// GetCompleteTTL 返回完整标记的有效期.
func (c *SearchConfig) GetCompleteTTL() time.Duration {
	if c.CompleteTTL <= 0 {
		return c.ResultTTL
	}

	return c.CompleteTTL
}

func (c *SearchConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("search.default_limit", DefaultSearchLimit)
	v.SetDefault("search.max_limit", DefaultSearchMaxLimit)
	v.SetDefault("search.max_tag_filters", DefaultMaxTagFilters)
	v.SetDefault("search.max_caption_length", DefaultMaxCaptionLen)
	v.SetDefault("search.photo_ttl", DefaultPhotoTTL)
	v.SetDefault("search.result_ttl", DefaultResultTTL)
	v.SetDefault("search.complete_ttl", 0)
	v.SetDefault("search.tag_list_ttl", DefaultTagListTTL)
	v.SetDefault("search.single_flight", true)
	v.SetDefault("search.cache_disabled", false)
}
