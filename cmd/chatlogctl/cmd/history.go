package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
)

func newHistoryCmd() *cobra.Command {
	var (
		channel string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reindex runs from the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeAudit := bootstrap.OpenAudit(ctx, cfg.Postgres)
			defer closeAudit()
			if !store.Enabled() {
				return errors.New("reindex audit trail is not configured (postgres.host)")
			}
			runs, err := store.Recent(ctx, normalizeChannel(channel), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				status := "ok"
				if !r.Success {
					status = "FAILED: " + r.Error
				}
				fmt.Fprintf(out, "%s %-24s entries=%-6d indexed=%-6d %s\n",
					r.FinishedAt.Local().Format("2006-01-02 15:04:05"), r.Channel, r.Entries, r.Indexed, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&channel, "channel", "C", "", "only runs for this channel")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}
