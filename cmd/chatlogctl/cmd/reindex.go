package cmd

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/reindex"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
)

type reindexOptions struct {
	all           bool
	skipMalformed bool
	concurrency   int
	notify        bool
}

func newReindexCmd() *cobra.Command {
	var opts reindexOptions
	cmd := &cobra.Command{
		Use:   "reindex [channel...]",
		Short: "Rebuild the phonetic index of channels from the message log",
		Long: `Rebuild the phonetic index of the named channels, or of every logged
channel with --all. A channel's old index is discarded first.

Examples:
  chatlogctl reindex '#go' ops
  chatlogctl reindex --all --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.all == (len(args) > 0) {
				return errors.New("name channels or pass --all, not both")
			}
			return runReindex(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.all, "all", false, "reindex every channel in the log")
	cmd.Flags().BoolVar(&opts.skipMalformed, "skip-malformed", false, "skip undecodable log entries instead of failing the channel")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "channels rebuilt at once (default from config)")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "publish the summary to the reindex-complete topic")
	return cmd
}

func runReindex(cmd *cobra.Command, args []string, opts reindexOptions) error {
	ctx := cmd.Context()
	rcfg := cfg.Reindex
	if opts.concurrency > 0 {
		rcfg.Concurrency = opts.concurrency
	}
	if opts.skipMalformed {
		rcfg.SkipMalformed = true
	}

	return withCore(func(core *bootstrap.Core) error {
		auditStore, closeAudit := bootstrap.OpenAudit(ctx, cfg.Postgres)
		defer closeAudit()
		var notifier kafka.Publisher
		if opts.notify {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReindexComplete)
			defer producer.Close()
			notifier = producer
		}
		driver := core.Driver(rcfg, nil, auditStore, notifier)

		var (
			summary *reindex.Summary
			err     error
		)
		if opts.all {
			summary, err = driver.ReindexAll(ctx)
		} else {
			channels := make([]string, len(args))
			for i, a := range args {
				channels[i] = normalizeChannel(a)
			}
			summary, err = driver.Reindex(ctx, channels)
		}
		if summary != nil {
			out := cmd.OutOrStdout()
			for _, st := range summary.Stats {
				status := "ok"
				if msg, failed := summary.Failed[st.Channel]; failed {
					status = "FAILED: " + msg
				}
				fmt.Fprintf(out, "%-24s entries=%-6d indexed=%-6d skipped=%-4d codes=%-6d %s\n",
					st.Channel, st.Entries, st.Indexed, st.Skipped+st.Malformed, st.CodesLinked, status)
			}
			fmt.Fprintf(out, "%d channels, %d failed, %s\n", summary.Channels, len(summary.Failed), summary.Duration().Round(time.Millisecond))
		}
		if err != nil {
			return err
		}
		if !summary.OK() {
			failed := make([]string, 0, len(summary.Failed))
			for c := range summary.Failed {
				failed = append(failed, c)
			}
			slices.Sort(failed)
			return fmt.Errorf("reindex failed for %v", failed)
		}
		return nil
	})
}
