// Package cmd contains the command line applications for the project.
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/photovault/pkg/app"
	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/log"
)

var (
	// configPath 配置文件或目录.
	configPath string
	// debug 输出 viper 调试信息.
	debug bool

	rootCmd = &cobra.Command{
		Use:           "photovault",
		Short:         "Photo library backend with cached tag and caption search",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP server, scheduler and event consumer",
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print viper debug output")

	rootCmd.AddCommand(serveCmd)

	registerConfigsCommands()
	registerDBCommands()
	registerKVCommands()
	registerMQCommands()
	registerJobsCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, configPath)
	if err != nil {
		return err
	}

	return a.Run(ctx)
}

// loadConfig 子命令共用的配置与日志初始化.
func loadConfig(*cobra.Command, []string) error {
	if err := configs.InitConfig(configPath); err != nil {
		return err
	}

	log.Init()

	return nil
}
