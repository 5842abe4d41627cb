package configs

import (
	"time"

	"github.com/spf13/viper"
)

// S3Config 对象存储(MinIO 兼容)配置. 照片文件本身存放于对象存储，file_path 为对象键.
type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"          rule:"required_if=Enabled true"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"       rule:"required_if=Enabled true"`
	Region          string `mapstructure:"region"`
	CreateBucket    bool   `mapstructure:"create_bucket"`

	// PresignExpiry 预签名下载地址有效期，S3 上限 7 天
	PresignExpiry time.Duration `mapstructure:"presign_expiry" rule:"min=0,max=168h"`
	// PublicBaseURL 非空时直接拼接 CDN/公共读地址，不再预签名
	PublicBaseURL string `mapstructure:"public_base_url" rule:"omitempty,url"`
}

const (
	DefaultS3Endpoint      = "localhost:9000"
	DefaultS3BucketName    = "photovault"
	DefaultS3Region        = "us-east-1"
	DefaultS3PresignExpiry = 15 * time.Minute
)

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.endpoint", DefaultS3Endpoint)
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.bucket_name", DefaultS3BucketName)
	v.SetDefault("s3.region", DefaultS3Region)
	v.SetDefault("s3.create_bucket", true)
	v.SetDefault("s3.presign_expiry", DefaultS3PresignExpiry)
	v.SetDefault("s3.public_base_url", "")
}
