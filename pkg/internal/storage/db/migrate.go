package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // migrate 的 postgres 驱动基于 database/sql

	"github.com/yeisme/photovault/pkg/configs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator 执行内嵌的 SQL migrations.
type Migrator struct {
	m  *migrate.Migrate
	db *sql.DB
}

// NewMigrator 使用独立连接打开 migrate 实例，调用方负责 Close.
func NewMigrator(cfg configs.DBConfig) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	sqlDB, err := sql.Open("postgres", cfg.GetURL())
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}

	drv, err := postgres.WithInstance(sqlDB, &postgres.Config{DatabaseName: cfg.Database})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init migrate: %w", err)
	}

	return &Migrator{m: m, db: sqlDB}, nil
}

// Up 应用所有未执行的 migration，已是最新时不报错.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

// Down 回滚 steps 个版本.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}

	if err := m.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}

	return nil
}

// Version 返回当前版本. 尚未执行任何 migration 时 version 为 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	return version, dirty, err
}

// Close 释放 migrate 持有的连接.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	_ = m.db.Close() // 驱动可能已关闭，重复关闭的错误忽略

	return errors.Join(srcErr, dbErr)
}

// Migrate 一次性执行 Up.
func Migrate(cfg configs.DBConfig) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}

	return errors.Join(m.Up(), m.Close())
}
