// Command quartzctl inspects cron expressions and runs a scheduler from a
// TOML configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "quartzctl",
		Short: "Inspect cron expressions and run a quartz scheduler",
		Long: `quartzctl - cron expressions and an in-memory job scheduler.

Configuration sources (in order of precedence):
1. Environment variables (QUARTZ_* prefix, e.g. QUARTZ_LOG_LEVEL)
2. The file given with --config
3. Default values

Examples:
  quartzctl next "0 15 10 ? * MON-FRI" -n 5    # Next five fire times
  quartzctl validate "0 0 12 * * ?" "0 61 * * * ?"
  quartzctl run --config quartz.toml           # Fire configured jobs until interrupted
  quartzctl config --config quartz.toml        # Show the effective configuration`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	root.AddCommand(newNextCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
