package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapetech/strmsync/internal/httpclient"
	"github.com/snapetech/strmsync/internal/provider"
	"github.com/snapetech/strmsync/internal/registry"
	"github.com/snapetech/strmsync/internal/safeurl"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect and name playlist providers",
	}
	cmd.AddCommand(newProvidersListCommand(ctx))
	cmd.AddCommand(newProvidersRenameCommand(ctx))
	cmd.AddCommand(newProvidersCheckCommand(ctx))
	return cmd
}

func newProvidersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known providers with their content counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.loggerFor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			links, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			reg := ctx.openRegistry(logger, nil)
			stats := reg.Stats()
			items := make(map[string][2]int, len(stats.Providers))
			for _, p := range stats.Providers {
				items[p.ID] = [2]int{p.Items, p.Preferred}
			}

			rows := make([][]string, 0, len(links))
			for _, l := range links {
				id := provider.ID(l.URL)
				n := items[id]
				rows = append(rows, []string{
					id, l.Name, safeurl.Redact(l.URL),
					strconv.Itoa(n[0]), strconv.Itoa(n[1]), strconv.Itoa(l.ContentCount), l.LastUpdated,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "URL", "Items", "Preferred", "Ingested", "Last updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newProvidersRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id-or-url> <name>",
		Short: "Set a provider's friendly name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" {
				return errors.New("name must not be empty")
			}
			logger, err := ctx.loggerFor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			unlock, err := (&registry.FileStore{Path: ctx.config.RegistryPath}).Lock()
			if err != nil {
				return err
			}
			defer unlock()
			reg := ctx.openRegistry(logger, st)

			url := args[0]
			if id, rec, ok := reg.LookupProvider(args[0]); ok {
				reg.RenameProvider(id, name)
				url = rec.URL
			} else if !safeurl.HasScheme(args[0]) {
				return fmt.Errorf("unknown provider %q", args[0])
			}
			if err := st.SetName(cmd.Context(), url, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %q\n", provider.ID(url), name)
			return nil
		},
	}
}

func newProvidersCheckCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check [url...]",
		Short: "Check that provider playlist URLs answer with a playlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if len(urls) == 0 {
				for _, s := range ctx.config.PlaylistSources() {
					if safeurl.IsHTTPOrHTTPS(s) {
						urls = append(urls, s)
					}
				}
			}
			if len(urls) == 0 {
				return errors.New("no URLs to check: pass them as arguments or configure provider URLs")
			}
			results := provider.CheckAll(cmd.Context(), urls, httpclient.WithTimeout(timeout), ctx.config.Workers)
			rows := make([][]string, 0, len(results))
			ok := 0
			for _, r := range results {
				if r.Status == provider.StatusOK {
					ok++
				}
				rows = append(rows, []string{safeurl.Redact(r.URL), string(r.Status), strconv.Itoa(r.StatusCode), fmt.Sprintf("%dms", r.LatencyMs)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"URL", "Status", "HTTP", "Latency"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight}))
			fmt.Fprintf(out, "%d of %d reachable\n", ok, len(results))
			if ok == 0 {
				return errors.New("no provider answered with a playlist")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "Per-request timeout")
	return cmd
}
