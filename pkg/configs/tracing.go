package configs

import (
	"time"

	"github.com/spf13/viper"
)

// 导出器类型.
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterZipkin   = "zipkin"
)

// TracingConfig OpenTelemetry 追踪配置. 未启用时仍安装 W3C 传播器.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"    rule:"required_if=Enabled true"`
	ServiceVersion string  `mapstructure:"service_version"`
	Environment    string  `mapstructure:"environment"`
	ExporterType   string  `mapstructure:"exporter_type"   rule:"oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string  `mapstructure:"endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate"     rule:"min=0,max=1"`
	// Insecure 仅影响 otlp-grpc；otlp-http 由 endpoint 的 scheme 决定
	Insecure bool `mapstructure:"insecure"`
	// Headers 随每次导出发送，例如托管后端的鉴权 token
	Headers            map[string]string `mapstructure:"headers"`
	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`
	BatchTimeout       time.Duration     `mapstructure:"batch_timeout"`
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "photovault")
	v.SetDefault("tracing.service_version", AppVersion)
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.exporter_type", ExporterOTLPHTTP)
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.batch_timeout", "5s")
}
