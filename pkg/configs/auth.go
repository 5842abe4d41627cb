package configs

import "github.com/spf13/viper"

// AuthConfig 身份识别配置. 认证由上游网关完成，这里只读取已认证的用户 ID.
type AuthConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	UserHeader string   `mapstructure:"user_header" rule:"required"`
	SkipPaths  []string `mapstructure:"skip_paths"`
	// DevAllowQuery 允许 ?user_id= 覆盖，只应在本地开发时开启
	DevAllowQuery bool `mapstructure:"dev_allow_query"`
	// RoleHeader 网关注入的角色头，取值 user / admin
	RoleHeader string `mapstructure:"role_header" rule:"required"`
	// AdminUsers 无论角色头如何都视为 admin 的用户
	AdminUsers []int64 `mapstructure:"admin_users"`
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.user_header", "X-User-ID")
	v.SetDefault("auth.skip_paths", []string{"/health", "/api/v1/health"})
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.role_header", "X-User-Role")
	v.SetDefault("auth.admin_users", []int64{})
}
