package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the content registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.loggerFor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg := ctx.openRegistry(logger, nil)
			st := reg.Stats()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, [][]string{
				{"Movies", strconv.Itoa(st.Movies)},
				{"TV shows", strconv.Itoa(st.Shows)},
				{"Episodes", strconv.Itoa(st.Episodes)},
				{"Multi-source items", strconv.Itoa(st.MultiSource)},
			}, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintln(out, renderCounts("Resolution", countRows(st.ByResolution)))

			rows := make([][]string, 0, len(st.Providers))
			for _, p := range st.Providers {
				rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(p.Items), strconv.Itoa(p.Preferred)})
			}
			fmt.Fprintln(out, renderTable([]string{"Provider", "Name", "Items", "Preferred"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
}

func newGapsCommand(ctx *commandContext) *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "List missing episode numbers per season",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.loggerFor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg := ctx.openRegistry(logger, nil)
			var rows [][]string
			for _, g := range reg.EpisodeGaps() {
				if show != "" && !strings.EqualFold(g.Show, show) {
					continue
				}
				missing := make([]string, len(g.Missing))
				for i, n := range g.Missing {
					missing[i] = fmt.Sprintf("E%02d", n)
				}
				rows = append(rows, []string{g.Show, "Season " + g.Season, strconv.Itoa(g.Have), strings.Join(missing, " ")})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No episode gaps.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Show", "Season", "Have", "Missing"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "Only report this show")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent library changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			changes, err := st.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(changes))
			for _, c := range changes {
				rows = append(rows, []string{c.RecordedAt, c.Action, c.ContentType, c.ItemName, c.Details})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"When", "Action", "Type", "Item", "Details"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of changes to show")
	return cmd
}
