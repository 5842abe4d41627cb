// Package s3 处理S3存储操作，为照片生成展示用的访问地址.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/configs"
)

// ErrEmptyKey 照片记录没有对象键.
var ErrEmptyKey = errors.New("s3: empty object key")

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	bucket string
	expiry time.Duration
	public *url.URL
}

// New 连接对象存储. bucket 不存在时按 create_bucket 创建或报错.
func New(ctx context.Context, cfg configs.S3Config, l *zerolog.Logger) (*Client, error) {
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("photovault", configs.AppVersion)

	if err := ensureBucket(ctx, cli, cfg, l); err != nil {
		return nil, err
	}

	c := &Client{Client: cli, bucket: cfg.BucketName, expiry: cfg.PresignExpiry}
	if c.expiry <= 0 {
		c.expiry = configs.DefaultS3PresignExpiry
	}

	if cfg.PublicBaseURL != "" {
		if c.public, err = url.Parse(cfg.PublicBaseURL); err != nil {
			return nil, fmt.Errorf("parse public_base_url: %w", err)
		}
	}

	l.Info().Str("endpoint", endpoint).Bool("tls", secure).Str("bucket", cfg.BucketName).
		Bool("public", c.public != nil).Msg("s3 connected")

	return c, nil
}

// splitEndpoint 接受 host:port 或带 scheme 的地址，https 强制开启 TLS.
func splitEndpoint(raw string, useSSL bool) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, useSSL
	}

	return u.Host, useSSL || u.Scheme == "https"
}

func ensureBucket(ctx context.Context, cli *minio.Client, cfg configs.S3Config, l *zerolog.Logger) error {
	exists, err := cli.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}

	if exists {
		return nil
	}

	if !cfg.CreateBucket {
		return fmt.Errorf("bucket %s does not exist", cfg.BucketName)
	}

	if err := cli.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
	}

	l.Info().Str("bucket", cfg.BucketName).Msg("bucket created")

	return nil
}

// ObjectKey 把照片记录中的 file_path 规范为对象键.
func ObjectKey(filePath string) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(filePath), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	return key, nil
}

// PresignGet 返回照片的访问地址. 配置了 public_base_url 时直接拼接，不访问存储.
func (c *Client) PresignGet(ctx context.Context, filePath string) (string, error) {
	key, err := ObjectKey(filePath)
	if err != nil {
		return "", err
	}

	if c.public != nil {
		return c.public.JoinPath(key).String(), nil
	}

	u, err := c.PresignedGetObject(ctx, c.bucket, key, c.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	return u.String(), nil
}

// HealthCheck 通过检查 bucket 验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("bucket %s missing", c.bucket)
	}

	return nil
}

// Close 无连接需要释放.
func (c *Client) Close() error {
	return nil
}
