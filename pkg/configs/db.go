package configs

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type (
	DBType string
)

const (
	// PostgreSQL 协议. 全文检索依赖 to_tsvector/ts_rank，仅支持 PostgreSQL.
	PostgreSQL DBType = "postgresql"
	Postgres   DBType = "postgres"
	Pg         DBType = "pg"
)

const (
	DefaultDatabaseHost     = "localhost"  // 默认数据库主机
	DefaultDatabasePort     = 5432         // 默认数据库端口
	DefaultDatabaseUser     = "postgres"   // 默认数据库用户
	DefaultDatabasePassword = ""           // 默认数据库密码
	DefaultDatabaseName     = "photovault" // 默认数据库名称
	DefaultDatabaseSSLMode  = "disable"    // 默认数据库SSL模式
	DefaultMaxOpenConns     = 20           // 默认最大打开连接数
	DefaultMaxIdleConns     = 5            // 默认最大空闲连接数
	DefaultConnectRetries   = 5            // 启动时等待数据库的重试次数
	DefaultConnectBackoff   = 2 * time.Second
	DefaultStatementTimeout = 10 * time.Second
)

// DBConfig 数据库配置.
type DBConfig struct {
	Type           DBType        `mapstructure:"type"            rule:"oneof=postgresql postgres pg"`
	Host           string        `mapstructure:"host"            rule:"required"`
	Port           int           `mapstructure:"port"            rule:"min=1,max=65535"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"        rule:"required"`
	SSLMode        string        `mapstructure:"sslmode"         rule:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"  rule:"min=1"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"  rule:"min=0"`
	ConnectRetries int           `mapstructure:"connect_retries" rule:"min=0,max=60"`
	ConnectBackoff time.Duration `mapstructure:"connect_backoff"`
	ConnMaxLife    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdle    time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"` // 启动时执行 migrations
	LogSQL         bool          `mapstructure:"log_sql"`
	AppName        string        `mapstructure:"application_name"`
	// StatementTimeout 单条语句超时，约束全文检索等慢查询，0 表示不限制. 不作用于 migrations.
	StatementTimeout time.Duration `mapstructure:"statement_timeout" rule:"min=0"`
}

// GetDBType 返回数据库类型的字符串表示.
func (c *DBConfig) GetDBType() string {
	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return "PostgreSQL"
	default:
		return "Unknown"
	}
}

// GetDSN 获取 key=value 形式的 PostgreSQL DSN，pgx 与 lib/pq 均可识别.
func (c *DBConfig) GetDSN() string {
	dsnMap := map[DBType]func() string{
		PostgreSQL: c.getPgSQLDSN,
		Postgres:   c.getPgSQLDSN,
		Pg:         c.getPgSQLDSN,
	}

	if fn, ok := dsnMap[c.Type]; ok {
		return fn()
	}

	return ""
}

// GetURL 获取 URL 形式的连接串，供 golang-migrate 使用.
func (c *DBConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
	}

	q := url.Values{"sslmode": {c.SSLMode}}
	if c.AppName != "" {
		q.Set("application_name", c.AppName+"-migrate")
	}

	u.RawQuery = q.Encode()

	return u.String()
}

// runtimeParams 作为连接参数下发的会话设置.
func (c *DBConfig) runtimeParams() map[string]string {
	params := make(map[string]string, 2)

	if c.AppName != "" {
		params["application_name"] = c.AppName
	}

	if c.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10)
	}

	return params
}

// getPgSQLDSN 获取PostgreSQL的DSN.
func (c *DBConfig) getPgSQLDSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)

	params := c.runtimeParams()
	for _, k := range slices.Sorted(maps.Keys(params)) {
		dsn += " " + k + "=" + params[k]
	}

	return dsn
}

// setDefaults 设置数据库配置的默认值.
func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", PostgreSQL)
	v.SetDefault("db.host", DefaultDatabaseHost)
	v.SetDefault("db.port", DefaultDatabasePort)
	v.SetDefault("db.user", DefaultDatabaseUser)
	v.SetDefault("db.password", DefaultDatabasePassword)
	v.SetDefault("db.database", DefaultDatabaseName)
	v.SetDefault("db.sslmode", DefaultDatabaseSSLMode)
	v.SetDefault("db.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("db.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("db.connect_retries", DefaultConnectRetries)
	v.SetDefault("db.connect_backoff", DefaultConnectBackoff)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.statement_timeout", DefaultStatementTimeout)
	v.SetDefault("db.application_name", "photovault")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.log_sql", false)
}
