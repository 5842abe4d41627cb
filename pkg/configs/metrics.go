package configs

import "github.com/spf13/viper"

// MetricsConfig Prometheus 指标. 指标与 pprof 挂在独立的调试端口上，不经过业务中间件.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"        rule:"required_if=Enabled true"`
	RuntimeMetrics bool   `mapstructure:"runtime_metrics"` // go_* 与 process_* 指标
	Pprof          bool   `mapstructure:"pprof"`
	GORM           bool   `mapstructure:"gorm"` // gorm 连接池指标
	// ConstLabels 附加到 photovault_* 指标上的固定标签，例如 region、instance
	ConstLabels map[string]string `mapstructure:"const_labels"`
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", ":9090")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.pprof", false)
	v.SetDefault("metrics.gorm", true)
}
