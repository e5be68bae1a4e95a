package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

func newInboxCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Review ambiguous matches",
	}
	cmd.AddCommand(newInboxListCommand(ctx), newInboxDecideCommand(ctx), newInboxAssignCommand(ctx))
	return cmd
}

func newInboxListCommand(ctx *commandContext) *cobra.Command {
	var assignee string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending items, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := ctx.client().Inbox(cmd.Context(), assignee, limit)
			if err != nil {
				return err
			}
			return ctx.print(cmd, items, func() string {
				if len(items) == 0 {
					return "Inbox is empty"
				}
				return renderItems(items)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "Only items assigned to this reviewer")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items to list")
	return cmd
}

func newInboxDecideCommand(ctx *commandContext) *cobra.Command {
	var req types.DecisionRequest

	cmd := &cobra.Command{
		Use:   "decide ITEM_ID",
		Short: "Decide a pending item: merge, new or reject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := parseOutcome(req.Outcome)
			if err != nil {
				return err
			}
			req.Outcome = outcome
			item, err := ctx.client().Decide(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return ctx.print(cmd, item, func() string {
				return fmt.Sprintf("Item %s is %s (profile %s)", item.ID, item.State, item.ProfileID)
			})
		},
	}
	cmd.Flags().StringVar(&req.Outcome, "outcome", "", "merge, new or reject")
	cmd.Flags().StringVar(&req.Reviewer, "reviewer", envOr("USER", ""), "Reviewer name")
	cmd.Flags().StringVar(&req.ProfileID, "profile", "", "Merge target when it differs from the proposal")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Free-text notes for the audit log")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func newInboxAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign ITEM_ID ASSIGNEE",
		Short: "Assign a pending item to a reviewer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := ctx.client().Assign(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.print(cmd, item, func() string {
				return fmt.Sprintf("Item %s assigned to %s", item.ID, item.Assignee)
			})
		},
	}
}

// parseOutcome accepts the short forms as well as the inbox states.
func parseOutcome(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "merge", "confirmed_merge":
		return string(model.InboxConfirmedMerge), nil
	case "new", "confirmed_new":
		return string(model.InboxConfirmedNew), nil
	case "reject", "rejected":
		return string(model.InboxRejected), nil
	default:
		return "", fmt.Errorf("unknown outcome %q: use merge, new or reject", s)
	}
}

func renderItems(items []model.InboxItem) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.ID, shortID(it.RecordID), shortID(it.ProposedProfileID), fmt.Sprintf("%.3f", it.Score),
			it.Assignee, formatTime(&it.CreatedAt),
		})
	}
	return renderTable([]string{"ID", "Record", "Proposed", "Score", "Assignee", "Created"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
}
