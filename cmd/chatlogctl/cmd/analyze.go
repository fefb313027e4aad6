package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/phonetic"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/tokenizer"
)

// analyze needs no Redis, so it builds an engine over an in-memory store.
func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <text>",
		Short: "Show the words and phonetic codes text would be indexed under",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := indexer.NewEngine(tokenizer.New(cfg.Indexer), phonetic.DoubleMetaphone{}, store.NewMemoryStore())
			out := cmd.OutOrStdout()
			for _, r := range engine.Analyze(strings.Join(args, " ")) {
				switch {
				case r.Failed():
					fmt.Fprintf(out, "%-20s error: %v\n", r.Token, r.Err)
				case len(r.Codes) == 0:
					fmt.Fprintf(out, "%-20s (no code)\n", r.Token)
				default:
					fmt.Fprintf(out, "%-20s %s\n", r.Token, strings.Join(r.Codes, " "))
				}
			}
			return nil
		},
	}
}
