package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLogFilePath   = "logs/photovault.log"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 7
	DefaultLogMaxAge     = 28 // 天
	DefaultLogLevel      = "info"
)

type (
	// LogConfig 日志配置. 控制台总是输出，文件输出经 lumberjack 轮转.
	LogConfig struct {
		Level      string `mapstructure:"level"        rule:"oneof=trace debug info warn error fatal panic disabled"`
		JSON       bool   `mapstructure:"json"` // 控制台输出 JSON 而非人类可读格式
		Caller     bool   `mapstructure:"caller"`
		EnableFile bool   `mapstructure:"enable_file"`
		FilePath   string `mapstructure:"file_path"    rule:"required_if=EnableFile true"`
		MaxSize    int    `mapstructure:"max_size_mb"  rule:"min=1"`
		MaxBackups int    `mapstructure:"max_backups"  rule:"min=0"`
		MaxAge     int    `mapstructure:"max_age_days" rule:"min=0"`
		Compress   bool   `mapstructure:"compress"`

		Sampling LogSampling `mapstructure:"sampling"`
	}

	// LogSampling 对 debug/info 做突发采样: 每个 Period 内最多输出 Burst 条，warn 以上不采样.
	// Burst 为 0 表示关闭.
	LogSampling struct {
		Burst  uint32        `mapstructure:"burst"`
		Period time.Duration `mapstructure:"period"`
	}
)

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)
	v.SetDefault("log.caller", false)
	v.SetDefault("log.enable_file", false)
	v.SetDefault("log.file_path", DefaultLogFilePath)
	v.SetDefault("log.max_size_mb", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age_days", DefaultLogMaxAge)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.sampling.burst", 0)
	v.SetDefault("log.sampling.period", "1s")
}
