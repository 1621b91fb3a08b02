package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snapetech/strmsync/internal/classify"
	"github.com/snapetech/strmsync/internal/httpclient"
	"github.com/snapetech/strmsync/internal/indexer"
	"github.com/snapetech/strmsync/internal/pipeline"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var samples bool
	cmd := &cobra.Command{
		Use:   "analyze <source>",
		Short: "Classify a playlist without touching the registry or the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			policy := httpclient.DefaultRetryPolicy
			policy.Attempts = uint(cfg.FetchAttempts)
			entries, err := indexer.Load(cmd.Context(), args[0], httpclient.WithTimeout(cfg.FetchTimeout.Duration), policy)
			if err != nil {
				return err
			}
			rep := pipeline.Analyze(classify.New(classifierOptions(cfg)), entries, cfg.Workers, cfg.BatchSize)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d entries\n", rep.Total)
			fmt.Fprintln(out, renderCounts("Outcome", analyzeOutcomeRows(rep)))
			fmt.Fprintln(out, renderCounts("Resolution", resolutionRows(rep)))
			fmt.Fprintln(out, renderCounts("Rule", countRows(rep.ByRule)))
			if samples {
				fmt.Fprintln(out, renderSamples(rep.Samples))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&samples, "samples", false, "Show sample entries for each outcome")
	return cmd
}

func analyzeOutcomeRows(rep pipeline.Report) [][]string {
	var rows [][]string
	for _, k := range []classify.Kind{classify.KindMovie, classify.KindTV} {
		rows = append(rows, []string{string(k), strconv.Itoa(rep.ByKind[k])})
	}
	reasons := make([]string, 0, len(rep.SkippedBy))
	for r := range rep.SkippedBy {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		rows = append(rows, []string{"skip: " + r, strconv.Itoa(rep.SkippedBy[classify.SkipReason(r)])})
	}
	return rows
}

func resolutionRows(rep pipeline.Report) [][]string {
	m := make(map[string]int, len(rep.ByResolution))
	for res, n := range rep.ByResolution {
		key := string(res)
		if key == "" {
			key = "unknown"
		}
		m[key] += n
	}
	return countRows(m)
}

// countRows sorts by count, descending.
func countRows(m map[string]int) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(m[k])})
	}
	return rows
}

func renderCounts(label string, rows [][]string) string {
	return renderTable([]string{label, "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderSamples(samples []pipeline.Sample) string {
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		outcome := string(s.Kind)
		if s.Skip != "" {
			outcome = "skip: " + string(s.Skip)
		}
		id := s.Identity
		detail := id.Title
		switch {
		case s.Skip != "":
			detail = ""
		case id.Kind == classify.KindTV && id.AirDate != "":
			detail = fmt.Sprintf("%s [%s]", id.Title, id.AirDate)
		case id.Kind == classify.KindTV:
			detail = fmt.Sprintf("%s S%sE%s", id.Title, id.Season, id.Episode)
		case id.Year != "":
			detail = fmt.Sprintf("%s (%s)", id.Title, id.Year)
		}
		rows = append(rows, []string{strconv.Itoa(s.Line), s.Name, outcome, detail, string(id.Resolution), s.Via})
	}
	return renderTable(
		[]string{"Line", "Name", "Outcome", "Parsed", "Res", "Rule"},
		rows,
		[]columnAlignment{alignRight},
	)
}
