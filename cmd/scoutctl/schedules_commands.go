package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
	"github.com/okian/scout/internal/opclient"
)

func newSchedulesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Manage per-connector ingestion cadences",
	}
	cmd.AddCommand(
		newSchedulesListCommand(ctx),
		newSchedulesSetCommand(ctx),
		newSchedulesDeleteCommand(ctx),
	)
	return cmd
}

func newSchedulesListCommand(ctx *commandContext) *cobra.Command {
	var enabledOnly bool
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connector schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := opclient.ScheduleQuery{Page: page, PageSize: pageSize}
			if enabledOnly {
				q.Enabled = &enabledOnly
			}
			out, err := ctx.client().ListSchedules(cmd.Context(), q)
			if err != nil {
				return err
			}
			return ctx.print(cmd, out, func() string { return renderSchedules(out.Items) })
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only list enabled schedules")
	cmd.Flags().IntVar(&page, "page", 0, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Schedules per page")
	return cmd
}

// newSchedulesSetCommand creates the schedule of a connector or patches the
// existing one.
func newSchedulesSetCommand(ctx *commandContext) *cobra.Command {
	var cadence string
	var enable, disable bool

	cmd := &cobra.Command{
		Use:   "set CONNECTOR",
		Short: "Create or change the schedule of a connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are exclusive")
			}
			client := ctx.client()
			patch := types.SchedulePatch{}
			if cmd.Flags().Changed("cadence") {
				patch.Cadence = &cadence
			}
			if enable || disable {
				patch.Enabled = &enable
			}

			s, err := client.GetSchedule(cmd.Context(), args[0])
			var apiErr *opclient.APIError
			switch {
			case err == nil:
				s, err = client.UpdateSchedule(cmd.Context(), args[0], patch)
			case errors.As(err, &apiErr) && apiErr.Code == "not_found":
				if patch.Cadence == nil {
					return fmt.Errorf("connector %q has no schedule yet, --cadence is required", args[0])
				}
				s, err = client.CreateSchedule(cmd.Context(), types.ScheduleRequest{
					Connector: args[0], Cadence: cadence, Enabled: patch.Enabled,
				})
			}
			if err != nil {
				return err
			}
			return ctx.print(cmd, s, func() string { return renderSchedules([]model.Schedule{s}) })
		},
	}
	cmd.Flags().StringVar(&cadence, "cadence", "", `Cron cadence, e.g. "0 6 * * *" or "@every 6h"`)
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable the schedule")
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable the schedule")
	return cmd
}

func newSchedulesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CONNECTOR",
		Short: "Remove the schedule of a connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().DeleteSchedule(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Schedule of %s deleted\n", args[0])
			return err
		},
	}
}

func renderSchedules(items []model.Schedule) string {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		rows = append(rows, []string{
			s.ConnectorID, s.Cadence, yesNo(s.Enabled), formatTime(&s.LastRunAt), formatTime(&s.NextDueAt),
		})
	}
	return renderTable([]string{"Connector", "Cadence", "Enabled", "Last run", "Next due"}, rows, nil)
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var connector, kind string
	var page, pageSize int

	list := &cobra.Command{
		Use:   "list",
		Short: "List ingestion logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ctx.client().ListLogs(cmd.Context(), opclient.LogQuery{
				Connector: connector, Kind: kind, Page: page, PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			return ctx.print(cmd, out, func() string { return renderLogs(out) })
		},
	}
	list.Flags().StringVar(&connector, "connector", "", "Only logs of this connector")
	list.Flags().StringVar(&kind, "kind", "", "Only logs of this kind (fetch, manual)")
	list.Flags().IntVar(&page, "page", 0, "Page number, starting at 1")
	list.Flags().IntVar(&pageSize, "page-size", 0, "Logs per page")

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect what was fetched from each source",
	}
	cmd.AddCommand(list)
	return cmd
}

func renderLogs(page types.LogPage) string {
	rows := make([][]string, 0, len(page.Items))
	for _, l := range page.Items {
		rows = append(rows, []string{
			shortID(l.ID), l.ConnectorID, l.Kind, formatTime(&l.FetchedAt),
			strconv.Itoa(l.Records), strconv.Itoa(l.Rejected), l.Error,
		})
	}
	return fmt.Sprintf("%d logs\n%s", page.Total, renderTable(
		[]string{"ID", "Connector", "Kind", "Fetched", "Records", "Rejected", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
}
