// Package db 处理数据库存储操作.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/photovault/pkg/configs"
)

// DialectorFactory 定义创建 dialector 的函数类型.
type DialectorFactory func(dsn string) gorm.Dialector

// dialectorFactories 存储数据库类型到 dialector 工厂的映射.
var dialectorFactories = map[configs.DBType]DialectorFactory{}

// RegisterDialectorFactory 注册数据库 dialector 工厂函数.
func RegisterDialectorFactory(dbType configs.DBType, factory DialectorFactory) {
	dialectorFactories[dbType] = factory
}

// GetRegisteredDBTypes 返回已注册的数据库类型，按名称排序.
func GetRegisteredDBTypes() []configs.DBType {
	return slices.Sorted(maps.Keys(dialectorFactories))
}

// Client 包装 GORM DB 客户端.
type Client struct {
	*gorm.DB
	cfg configs.DBConfig
}

// Options 创建客户端时的可选项.
type Options struct {
	Logger  *zerolog.Logger
	Metrics bool // 注册 gorm prometheus 插件
}

// New 连接数据库. 启动阶段数据库可能尚未就绪，按 ConnectRetries 重试.
func New(ctx context.Context, cfg configs.DBConfig, opts Options) (*Client, error) {
	l := opts.Logger
	if l == nil {
		nop := zerolog.Nop()
		l = &nop
	}

	dsn := cfg.GetDSN()
	if dsn == "" {
		return nil, fmt.Errorf("failed to generate DSN for database type: %s", cfg.Type)
	}

	factory, exists := dialectorFactories[cfg.Type]
	if !exists {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}

	gormLogger := logger.New(l, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(factory(dsn), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdle)

	if err := ping(ctx, sqlDB.PingContext, cfg, l); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	client := &Client{DB: db, cfg: cfg}
	if opts.Metrics {
		if err := client.RegisterGORMMetrics(cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to register GORM metrics: %w", err)
		}

		l.Info().Msg("GORM metrics registered")
	}

	l.Info().
		Str("type", cfg.GetDBType()).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("database connected")

	return client, nil
}

// maxConnectBackoff 指数退避的上限.
const maxConnectBackoff = 30 * time.Second

func ping(ctx context.Context, fn func(context.Context) error, cfg configs.DBConfig, l *zerolog.Logger) error {
	backoff := cfg.ConnectBackoff

	var err error

	for attempt := range cfg.ConnectRetries + 1 {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == cfg.ConnectRetries {
			break
		}

		l.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("database not ready, retrying")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(fmt.Errorf("failed to ping database: %w", err), ctx.Err())
		case <-t.C:
		}

		backoff = min(backoff*2, maxConnectBackoff)
	}

	return fmt.Errorf("failed to ping database after %d attempts: %w", cfg.ConnectRetries+1, err)
}

// GetDB 返回 GORM DB 实例.
func (c *Client) GetDB() *gorm.DB {
	return c.DB
}

// Config 返回连接使用的配置.
func (c *Client) Config() configs.DBConfig {
	return c.cfg
}

// HealthCheck 检查连接可用.
func (c *Client) HealthCheck(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Stats 连接池统计，sql.DB 不可用时返回零值.
func (c *Client) Stats() sql.DBStats {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return sql.DBStats{}
	}

	return sqlDB.Stats()
}

// Close 关闭连接池.
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

const defaultGORMMetricsRefreshInterval = 15 // 秒

// RegisterGORMMetrics 注册GORM连接池指标.
func (c *Client) RegisterGORMMetrics(dbName string) error {
	promConfig := gormPrometheus.Config{
		DBName:          dbName,
		RefreshInterval: defaultGORMMetricsRefreshInterval,
		StartServer:     false, // 指标由 pkg/metrics 的调试端口统一暴露
	}

	if err := c.Use(gormPrometheus.New(promConfig)); err != nil {
		return fmt.Errorf("failed to register GORM prometheus plugin: %w", err)
	}

	return nil
}
