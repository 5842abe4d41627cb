package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/photovault/pkg/configs"
	mq "github.com/yeisme/photovault/pkg/internal/storage/mq"
	"github.com/yeisme/photovault/pkg/log"
	"github.com/yeisme/photovault/pkg/queue"
)

var (
	invalidateUserID   int64
	invalidatePhotoIDs []int64


	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "Message queue related commands",
		Aliases: []string{"messagequeue"},
	}

	mqListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered mq types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered mq types:")
			for _, t := range mq.RegisteredTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	// 手动广播失效事件，所有实例(包括写入方)都会处理.
	mqInvalidateCmd = &cobra.Command{
		Use:     "invalidate",
		Short:   "publish a photo change event so every instance drops the user's caches",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			if invalidateUserID <= 0 {
				return fmt.Errorf("--user must be a positive user id")
			}

			cfg := configs.GetConfig()
			if cfg.MQ.Type == configs.MQTypeMemory {
				return fmt.Errorf("mq type %q is process local, nothing would receive the event", cfg.MQ.Type)
			}

			client, err := mq.New(cmd.Context(), cfg.MQ, mq.Options{Logger: log.Logger()})
			if err != nil {
				return err
			}
			defer client.Close()

			err = queue.PublishPhotoChanged(cmd.Context(), client, queue.TopicPhotoUpdated, queue.PhotoChangedPayload{
				UserID:   invalidateUserID,
				PhotoIDs: invalidatePhotoIDs,
				Fields:   []string{"manual"},
				Origin:   "cli",
			}, queue.WithProducer("photovault-cli"))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s for user %d\n", queue.TopicPhotoUpdated, invalidateUserID)

			return nil
		},
	}

	mqTopicsCmd = &cobra.Command{
		Use:   "topics",
		Short: "list the topics used for cache invalidation events",
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range queue.PhotoTopics {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}
)

// registerMQCommands 注册 MQ 相关命令.
func registerMQCommands() {
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(mqListCmd)
	mqCmd.AddCommand(mqTopicsCmd)

	mqInvalidateCmd.Flags().Int64Var(&invalidateUserID, "user", 0, "user id")
	mqInvalidateCmd.Flags().Int64SliceVar(&invalidatePhotoIDs, "photo", nil, "photo ids whose metadata should be dropped")
	_ = mqInvalidateCmd.MarkFlagRequired("user")
	mqCmd.AddCommand(mqInvalidateCmd)
}
