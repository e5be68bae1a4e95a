package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show reviewer and operator actions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.client().Audit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return ctx.print(cmd, entries, func() string {
				if len(entries) == 0 {
					return "No audit entries"
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(e.Seq, 10), formatTime(&e.At), e.Action, e.Actor,
						string(e.Outcome), shortID(e.RecordID), shortID(e.ProfileID), e.Notes,
					})
				}
				return renderTable([]string{"Seq", "At", "Action", "Actor", "Outcome", "Record", "Profile", "Notes"}, rows,
					[]columnAlignment{alignRight})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}
