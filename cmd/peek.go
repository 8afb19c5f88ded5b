package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"autoposter/internal/coordinator"
	"autoposter/internal/models"
)

const captionWidth = 48

// peekRow is what one queue would publish next, or why it would not.
type peekRow struct {
	platform models.Platform
	row      *models.Row
	err      error
}

func peekCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "peek",
		Short: "Show the row each queue would publish next, without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.validate(); err != nil {
				return err
			}
			queues, err := a.buildQueues(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPeek(peekQueues(cmd.Context(), queues)))
			return nil
		},
	}
}

func peekQueues(ctx context.Context, queues []coordinator.Queue) []peekRow {
	out := make([]peekRow, 0, len(queues))
	for _, q := range queues {
		row, err := q.Store.FirstEligible(ctx)
		out = append(out, peekRow{platform: q.Platform, row: row, err: err})
	}
	return out
}

func renderPeek(rows []peekRow) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Platform", "Row", "Asset", "Caption", "Status"})

	for _, r := range rows {
		switch {
		case r.err != nil:
			tw.AppendRow(table.Row{r.platform, "", "", "error: " + r.err.Error(), ""})
		case r.row == nil:
			tw.AppendRow(table.Row{r.platform, "", "", "(nothing pending)", ""})
		default:
			status := string(r.row.Status)
			if status == "" {
				status = "(blank)"
			}
			tw.AppendRow(table.Row{r.platform, r.row.Position, r.row.Identifier, truncate(r.row.Text, captionWidth), status})
		}
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Row", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
