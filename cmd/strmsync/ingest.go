package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapetech/strmsync/internal/classify"
	"github.com/snapetech/strmsync/internal/config"
	"github.com/snapetech/strmsync/internal/httpclient"
	"github.com/snapetech/strmsync/internal/indexer"
	"github.com/snapetech/strmsync/internal/logging"
	"github.com/snapetech/strmsync/internal/materializer"
	"github.com/snapetech/strmsync/internal/pipeline"
	"github.com/snapetech/strmsync/internal/progress"
	"github.com/snapetech/strmsync/internal/registry"
	"github.com/snapetech/strmsync/internal/safeurl"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var workers, batchSize int
	cmd := &cobra.Command{
		Use:   "ingest [source...]",
		Short: "Classify playlists, update the registry and write pointer files",
		Long: "Each source is a local playlist (optionally .gz or .xz) or an http(s) URL.\n" +
			"Without arguments the configured sources are ingested.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *ctx.config
			if workers > 0 {
				cfg.Workers = workers
			}
			if batchSize > 0 {
				cfg.BatchSize = batchSize
			}
			sources := args
			if len(sources) == 0 {
				sources = cfg.PlaylistSources()
			}
			if len(sources) == 0 {
				return errors.New("no playlist sources: pass them as arguments or set sources in the config")
			}
			logger, err := ctx.loggerFor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runIngest(cmd, ctx, &cfg, logger, sources)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Override the worker count")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override the batch size")
	return cmd
}

func runIngest(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, logger *slog.Logger, sources []string) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	regFile := &registry.FileStore{Path: cfg.RegistryPath}
	unlock, err := regFile.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	st, err := ctx.openStore()
	if err != nil {
		return err
	}
	reg := ctx.openRegistry(logger, st)

	if cfg.MetricsAddr != "" {
		serveCtx, cancel := context.WithCancel(runCtx)
		defer cancel()
		go func() {
			if err := ctx.metrics.Serve(serveCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics: server failed", "err", err)
			}
		}()
	}
	defer func() {
		if err := ctx.metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn("metrics: write textfile failed", "path", cfg.MetricsTextfile, "err", err)
		}
	}()

	runner, err := pipeline.New(pipeline.Config{
		Classifier: classify.New(classifierOptions(cfg)),
		Registry:   reg,
		Layout:     materializer.Layout{Root: cfg.OutputPath, Ext: cfg.PointerExt},
		Artifacts:  materializer.NewWriter(nil, cfg.OutputPath),
		Changes:    st,
		Links:      st,
		Progress: progress.Multi{
			progress.LogSink{Logger: logging.NewComponentLogger(logger, "pipeline")},
			progress.OpenStatusFile(cfg.StatusPath, logger),
		},
		Metrics:       ctx.metrics,
		Logger:        logging.NewComponentLogger(logger, "pipeline"),
		BatchSize:     cfg.BatchSize,
		Workers:       cfg.Workers,
		EntryTimeout:  cfg.EntryTimeout.Duration,
		ProgressEvery: cfg.ProgressEvery,
	})
	if err != nil {
		return err
	}

	client := httpclient.WithTimeout(cfg.FetchTimeout.Duration)
	policy := httpclient.DefaultRetryPolicy
	policy.Attempts = uint(cfg.FetchAttempts)

	var rows [][]string
	for _, source := range sources {
		entries, err := indexer.Load(runCtx, source, client, policy)
		if err != nil {
			ctx.metrics.RunFinished(progress.StateFailed, 0, time.Now())
			return err
		}
		logger.Info("ingest: playlist loaded", "source", safeurl.Redact(source), "entries", len(entries))
		sum, runErr := runner.Run(runCtx, source, entries)
		rows = append(rows, summaryRow(source, sum))
		if runErr != nil {
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(rows))
			return runErr
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(rows))
	return nil
}

func classifierOptions(cfg *config.Config) classify.Options {
	return classify.Options{
		LanguageFilter: cfg.LanguageFilter,
		LanguageCode:   cfg.LanguageCode,
		MovieKeywords:  cfg.MovieKeywords,
		TVKeywords:     cfg.TVKeywords,
	}
}

func summaryRow(source string, s pipeline.Summary) []string {
	skips := make([]string, 0, len(s.SkippedBy))
	for reason, n := range s.SkippedBy {
		skips = append(skips, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(skips)
	return []string{
		safeurl.Redact(source),
		strconv.Itoa(s.Total),
		strconv.Itoa(s.ProcessedMovies),
		strconv.Itoa(s.ProcessedTV),
		strconv.Itoa(s.Skipped),
		strconv.Itoa(s.Errors),
		strings.Join(skips, " "),
		s.Duration.Round(time.Millisecond).String(),
	}
}

func renderSummary(rows [][]string) string {
	return renderTable(
		[]string{"Source", "Entries", "Movies", "TV", "Skipped", "Errors", "Skip reasons", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight},
	)
}
