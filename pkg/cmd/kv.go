package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/photovault/pkg/cache"
	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/internal/search"
	kv "github.com/yeisme/photovault/pkg/internal/storage/kv"
)

var (
	flushUserIDs []int64
	flushKeepTag bool

	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "inspect and maintain the search cache store",
		Aliases: []string{"cache"},
	}

	kvListCmd = &cobra.Command{
		Use:     "ls",
		Short:   "list registered kv backends",
		Aliases: []string{"list"},
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}

	kvPingCmd = &cobra.Command{
		Use:     "ping",
		Short:   "check the configured kv backend is reachable",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(cmd, func(client *kv.Client) error {
				start := time.Now()
				if err := client.Ping(cmd.Context()); err != nil {
					return fmt.Errorf("ping %s: %w", configs.GetConfig().KV.Type, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", configs.GetConfig().KV.Type, time.Since(start).Round(time.Microsecond))

				return nil
			})
		},
	}

	// 清空用户的搜索结果与标签词表缓存，照片元数据 photo:{id} 不受影响.
	kvFlushSearchCmd = &cobra.Command{
		Use:     "flush-search",
		Short:   "drop cached search results and tag lists of users",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range flushUserIDs {
				if id <= 0 {
					return fmt.Errorf("invalid user id %d", id)
				}
			}

			return withKV(cmd, func(client *kv.Client) error {
				c := cache.NewCache(client.Store)

				for _, id := range flushUserIDs {
					n, err := c.Clear(cmd.Context(), search.SearchKeyPattern(id))
					if err != nil {
						return fmt.Errorf("user %d: %w", id, err)
					}

					if !flushKeepTag {
						if err := c.Delete(cmd.Context(), search.TagListKey(id)); err != nil {
							return fmt.Errorf("user %d: %w", id, err)
						}
					}

					fmt.Fprintf(cmd.OutOrStdout(), "user %d: removed %d search keys\n", id, n)
				}

				return nil
			})
		},
	}
)

// withKV 按当前配置连接 KV 并在 fn 返回后关闭.
func withKV(cmd *cobra.Command, fn func(*kv.Client) error) error {
	cfg := configs.GetConfig()

	client, err := kv.NewKVClient(cmd.Context(), cfg.KV, cfg.CircuitBreaker)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(client)
}

// registerKVCommands 注册 KV 相关命令.
func registerKVCommands() {
	kvFlushSearchCmd.Flags().Int64SliceVar(&flushUserIDs, "user", nil, "user ids, repeatable or comma separated")
	kvFlushSearchCmd.Flags().BoolVar(&flushKeepTag, "keep-tags", false, "keep the cached tag list")
	_ = kvFlushSearchCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvListCmd, kvPingCmd, kvFlushSearchCmd)
}
