package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/opclient"
)

func newTalentsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talents",
		Short: "Search and maintain the talent directory",
	}
	cmd.AddCommand(newTalentsSearchCommand(ctx), newTalentsShowCommand(ctx), newTalentsArchiveCommand(ctx))
	return cmd
}

func newTalentsSearchCommand(ctx *commandContext) *cobra.Command {
	var q opclient.SearchQuery

	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search talent profiles by name, affiliation or identifier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Query = args[0]
			}
			page, err := ctx.client().SearchTalents(cmd.Context(), q)
			if err != nil {
				return err
			}
			return ctx.print(cmd, page, func() string {
				rows := make([][]string, 0, len(page.Items))
				for _, p := range page.Items {
					rows = append(rows, []string{
						p.ID, p.Attributes.Name, p.Attributes.Affiliation,
						strconv.Itoa(len(p.Provenance)), strconv.FormatInt(p.Version, 10), yesNo(p.Archived),
					})
				}
				return fmt.Sprintf("%s\nPage %d, %d of %d profiles",
					renderTable([]string{"ID", "Name", "Affiliation", "Sources", "Version", "Archived"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}),
					page.Page, len(page.Items), page.Total)
			})
		},
	}
	cmd.Flags().StringVar(&q.Affiliation, "affiliation", "", "Filter by affiliation")
	cmd.Flags().BoolVar(&q.IncludeArchived, "archived", false, "Include archived profiles")
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", 20, "Profiles per page")
	return cmd
}

func newTalentsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show PROFILE_ID",
		Short: "Show one profile with its provenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.client().GetTalent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return ctx.print(cmd, p, func() string { return renderProfile(p) })
		},
	}
}

func newTalentsArchiveCommand(ctx *commandContext) *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "archive PROFILE_ID",
		Short: "Soft-archive a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.client().ArchiveTalent(cmd.Context(), args[0], operator)
			if err != nil {
				return err
			}
			return ctx.print(cmd, p, func() string { return fmt.Sprintf("Profile %s archived", p.ID) })
		},
	}
	cmd.Flags().StringVar(&operator, "operator", envOr("USER", ""), "Operator name")
	return cmd
}

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var operator, reason string

	reopen := &cobra.Command{
		Use:   "reopen RECORD_ID",
		Short: "Reopen the decision on a record for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client().Reopen(cmd.Context(), args[0], operator, reason)
			if err != nil {
				return err
			}
			return ctx.print(cmd, c, func() string {
				return fmt.Sprintf("Candidate %s supersedes %s and awaits review", c.ID, c.Supersedes)
			})
		},
	}
	reopen.Flags().StringVar(&operator, "operator", envOr("USER", ""), "Operator name")
	reopen.Flags().StringVar(&reason, "reason", "", "Why the decision is reopened")

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Correct decisions on candidate records",
	}
	cmd.AddCommand(reopen)
	return cmd
}

func renderProfile(p model.TalentProfile) string {
	a := p.Attributes
	summary := renderPairs([][2]string{
		{"ID", p.ID},
		{"Name", a.Name},
		{"Affiliation", a.Affiliation},
		{"Discipline", strings.Join(a.Discipline, ", ")},
		{"Themes", strings.Join(a.Themes, ", ")},
		{"Signal", signalText(p.Signal)},
		{"Email", a.Email},
		{"Phone", a.Phone},
		{"Links", strings.Join(a.Links, ", ")},
		{"Version", strconv.FormatInt(p.Version, 10)},
		{"Archived", yesNo(p.Archived)},
	})
	rows := make([][]string, 0, len(p.Provenance))
	for _, l := range p.Provenance {
		rows = append(rows, []string{l.SourceID, l.NativeID, shortID(l.RecordID), formatTime(&l.LinkedAt)})
	}
	return summary + "\n" + renderTable([]string{"Source", "Native ID", "Record", "Linked"}, rows, nil)
}

func signalText(s *model.Signal) string {
	if s == nil {
		return "-"
	}
	return strconv.FormatFloat(s.Score, 'f', 1, 64)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
