package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/types"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change thresholds and connector switches",
	}
	cmd.AddCommand(newSettingsShowCommand(ctx), newSettingsSetCommand(ctx))
	return cmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the runtime settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.client().Settings(cmd.Context())
			if err != nil {
				return err
			}
			return ctx.print(cmd, s, func() string { return renderSettings(s) })
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var autoMerge, noMatch float64
	var enable, disable []string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change thresholds or enable and disable connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			s, err := client.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("auto-merge") {
				s.AutoMergeThreshold = autoMerge
			}
			if cmd.Flags().Changed("no-match") {
				s.NoMatchThreshold = noMatch
			}
			changes := make(map[string]bool, len(enable)+len(disable))
			for _, id := range enable {
				changes[id] = true
			}
			for _, id := range disable {
				if changes[id] {
					return fmt.Errorf("connector %q is both enabled and disabled", id)
				}
				changes[id] = false
			}
			s.Connectors = changes
			next, err := client.UpdateSettings(cmd.Context(), s)
			if err != nil {
				return err
			}
			return ctx.print(cmd, next, func() string { return renderSettings(next) })
		},
	}
	cmd.Flags().Float64Var(&autoMerge, "auto-merge", 0, "Score at or above which records merge automatically")
	cmd.Flags().Float64Var(&noMatch, "no-match", 0, "Score below which records become new profiles")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "Connectors to enable")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "Connectors to disable")
	return cmd
}

func renderSettings(s types.Settings) string {
	ids := make([]string, 0, len(s.Connectors))
	for id := range s.Connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, yesNo(s.Connectors[id])})
	}
	return renderPairs([][2]string{
		{"auto_merge_threshold", strconv.FormatFloat(s.AutoMergeThreshold, 'f', -1, 64)},
		{"no_match_threshold", strconv.FormatFloat(s.NoMatchThreshold, 'f', -1, 64)},
	}) + "\n" + renderTable([]string{"Connector", "Enabled"}, rows, nil)
}
