// Package storage 聚合数据库、缓存、消息队列与对象存储客户端.
//
// Example:
//
//	mgr, err := storage.New(ctx, configs.GetConfig(), nlog.Logger())
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	dbClient := mgr.GetDBClient()
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/configs"
	dbc "github.com/yeisme/photovault/pkg/internal/storage/db"
	kvc "github.com/yeisme/photovault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/photovault/pkg/internal/storage/mq"
	s3c "github.com/yeisme/photovault/pkg/internal/storage/s3"
	"github.com/yeisme/photovault/pkg/metrics"
)

// Manager 聚合所有存储资源. MQ 与 S3 未启用时为 nil.
type Manager struct {
	DB *dbc.Client
	KV *kvc.Client
	MQ *mqc.Client
	S3 *s3c.Client
}

// New 按配置初始化所有存储. 任一必需组件失败时关闭已创建的资源并返回错误.
func New(ctx context.Context, cfg *configs.AppConfig, l *zerolog.Logger) (m *Manager, err error) {
	m = &Manager{}

	defer func() {
		if err != nil {
			_ = m.Close()
			m = nil
		}
	}()

	if cfg.DB.AutoMigrate {
		if err = dbc.Migrate(cfg.DB); err != nil {
			return m, fmt.Errorf("migrate database: %w", err)
		}

		l.Info().Msg("database migrations applied")
	}

	if m.DB, err = dbc.New(ctx, cfg.DB, dbc.Options{
		Logger:  l,
		Metrics: cfg.Metrics.Enabled && cfg.Metrics.GORM,
	}); err != nil {
		return m, err
	}

	if m.KV, err = kvc.NewKVClient(ctx, cfg.KV, cfg.CircuitBreaker); err != nil {
		return m, fmt.Errorf("init kv: %w", err)
	}

	l.Info().Str("type", cfg.KV.Type).Bool("breaker", cfg.CircuitBreaker.KV).Msg("kv store initialized")

	if cfg.Events.Enabled {
		opts := mqc.Options{Logger: l}
		if cfg.Metrics.Enabled {
			opts.Registerer = metrics.GetRegistry()
		}

		if m.MQ, err = mqc.New(ctx, cfg.MQ, opts); err != nil {
			return m, err
		}
	}

	if cfg.S3.Enabled {
		if m.S3, err = s3c.New(ctx, cfg.S3, l); err != nil {
			return m, err
		}
	}

	l.Info().Msg("storage manager initialized")

	return m, nil
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// GetS3Client 获取 S3 客户端.
func (m *Manager) GetS3Client() *s3c.Client {
	return m.S3
}

// Close 按创建的逆序关闭资源.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	var errs []error

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
