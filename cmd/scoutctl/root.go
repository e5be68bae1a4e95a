package main

import (
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultAddr    = "http://localhost:9080"
	defaultTimeout = 30 * time.Second
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "scoutctl",
		Short:         "Operate a scout talent pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.addr, "addr", envOr("SCOUT_ADDR", defaultAddr), "Base URL of the scoutd API")
	flags.DurationVar(&ctx.timeout, "timeout", defaultTimeout, "HTTP request timeout")
	flags.BoolVar(&ctx.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newInboxCommand(ctx))
	rootCmd.AddCommand(newTalentsCommand(ctx))
	rootCmd.AddCommand(newRecordsCommand(ctx))
	rootCmd.AddCommand(newSettingsCommand(ctx))
	rootCmd.AddCommand(newSchedulesCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))

	return rootCmd
}
