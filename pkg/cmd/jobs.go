package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/internal/jobs"
)

var (
	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Scheduled job related commands",
	}

	jobsListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list configured cron jobs",
		Aliases: []string{"ls", "l"},
		PreRunE: loadConfig,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENABLED\tCRON\tDETAIL")

			for _, spec := range jobs.Specs(configs.GetConfig().Jobs) {
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", spec.Name, spec.Enabled, spec.Cron, spec.Detail)
			}

			_ = w.Flush()
		},
	}
)

// registerJobsCommands 注册定时任务相关命令.
func registerJobsCommands() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
}
