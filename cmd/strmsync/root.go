package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// run executes the CLI with args and releases everything the command opened.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cc := newCommandContext(&globalFlags{})
	defer cc.close()
	root := newRootCommand(cc)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCommand(ctx *commandContext) *cobra.Command {
	flags := ctx.flags

	rootCmd := &cobra.Command{
		Use:           "strmsync",
		Short:         "Ingest IPTV playlists into a deduplicated pointer-file library",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path (TOML)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Environment file loaded before the config")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Override the log format (auto, text, json)")

	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newGapsCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newProvidersCommand(ctx))
	return rootCmd
}
