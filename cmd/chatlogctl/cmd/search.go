package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/parser"
)

type searchOptions struct {
	channels []string
	limit    int
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search channels by how words sound",
		Long: `Search one or more channels for messages containing words that sound
like the query words. Words are ANDed unless OR appears; NOT excludes the
following word.

Examples:
  chatlogctl search -C go schmit
  chatlogctl search -C go -C rust 'deploy OR release' --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.channels, "channel", "C", nil, "channel to search (repeatable; default every channel)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	return withCore(func(core *bootstrap.Core) error {
		channels := make([]string, 0, len(opts.channels))
		for _, c := range opts.channels {
			channels = append(channels, normalizeChannel(c))
		}
		if len(channels) == 0 {
			all, err := core.Log.Channels(ctx)
			if err != nil {
				return err
			}
			channels = all
		}

		plan := parser.Parse(core.Engine, query)
		res, err := executor.New(core.Index, core.Log).ExecuteAcross(ctx, channels, plan, opts.limit)
		if err != nil {
			return err
		}
		if opts.format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResults(cmd.OutOrStdout(), res)
		return nil
	})
}

func printResults(w io.Writer, res *executor.MultiResult) {
	if len(res.Dropped) > 0 {
		fmt.Fprintf(w, "ignored: %s\n", strings.Join(res.Dropped, " "))
	}
	for _, hit := range res.Results {
		fmt.Fprintf(w, "%s %-16s %-8s <%s> %s\n",
			hit.CreatedAt.Format("2006-01-02 15:04:05"), hit.Channel, hit.ID, hit.Source, hit.Message)
	}
	fmt.Fprintf(w, "%d of %d hits\n", len(res.Results), res.TotalHits)
}
