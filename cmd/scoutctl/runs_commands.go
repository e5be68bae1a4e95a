package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/types"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the service and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			if _, err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("service at %s is not healthy: %w", client.BaseURL(), err)
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return ctx.print(cmd, stats, func() string {
				keys := make([]string, 0, len(stats))
				for k := range stats {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				pairs := make([][2]string, 0, len(keys))
				for _, k := range keys {
					pairs = append(pairs, [2]string{k, fmt.Sprint(stats[k])})
				}
				return renderPairs(pairs)
			})
		},
	}
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Start and inspect connector runs",
	}
	cmd.AddCommand(newRunsStartCommand(ctx), newRunsListCommand(ctx), newRunsShowCommand(ctx))
	return cmd
}

func newRunsStartCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "start CONNECTOR...",
		Short: "Start a run over the given connectors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			run, err := client.StartRun(cmd.Context(), args)
			if err != nil {
				return err
			}
			if wait > 0 {
				deadline := time.Now().Add(wait)
				for !terminalRun(run.State) && time.Now().Before(deadline) {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(500 * time.Millisecond):
					}
					if run, err = client.GetRun(cmd.Context(), run.ID); err != nil {
						return err
					}
				}
			}
			return ctx.print(cmd, run, func() string { return renderRun(run) })
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll until the run finishes or the duration elapses")
	return cmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := ctx.client().ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return ctx.print(cmd, runs, func() string {
				if len(runs) == 0 {
					return "No runs"
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						r.ID, r.State, strings.Join(r.Connectors, ","), formatTime(&r.CreatedAt), formatTime(r.FinishedAt),
					})
				}
				return renderTable([]string{"ID", "State", "Connectors", "Created", "Finished"}, rows, nil)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one run and its connector executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.client().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return ctx.print(cmd, run, func() string { return renderRun(run) })
		},
	}
}

func terminalRun(state string) bool {
	switch state {
	case "SUCCEEDED", "FAILED", "PARTIAL":
		return true
	default:
		return false
	}
}

func renderRun(run types.Run) string {
	rows := make([][]string, 0, len(run.Executions))
	for _, e := range run.Executions {
		errText := e.Error
		if e.TimedOut {
			errText = "timed out: " + errText
		}
		rows = append(rows, []string{
			e.ConnectorID, e.State, strconv.Itoa(e.Records), strconv.Itoa(e.Rejected), strconv.Itoa(e.Unresolved),
			formatTime(e.FinishedAt), errText,
		})
	}
	return fmt.Sprintf("Run %s: %s\n%s", run.ID, run.State, renderTable(
		[]string{"Connector", "State", "Records", "Rejected", "Unresolved", "Finished", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
}
