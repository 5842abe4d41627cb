package configs

import "github.com/spf13/viper"

// EventsConfig 控制照片变更事件的发布与消费.
type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"` // 总开关，关闭时仅做本地缓存失效
	Consume bool `mapstructure:"consume"` // 是否启动消费者，多实例部署时用于跨实例失效
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.consume", true)
}
