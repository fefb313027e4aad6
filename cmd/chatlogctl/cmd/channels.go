package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
)

func newChannelsCmd() *cobra.Command {
	var withDates bool
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List logged channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withCore(func(core *bootstrap.Core) error {
				channels, err := core.Log.Channels(ctx)
				if err != nil {
					return err
				}
				slices.Sort(channels)
				out := cmd.OutOrStdout()
				for _, c := range channels {
					if !withDates {
						fmt.Fprintln(out, c)
						continue
					}
					dates, err := core.Log.Dates(ctx, c)
					if err != nil {
						return err
					}
					slices.Sort(dates)
					first, last := "-", "-"
					if len(dates) > 0 {
						first, last = dates[0], dates[len(dates)-1]
					}
					fmt.Fprintf(out, "%-24s %4d days  %s .. %s\n", c, len(dates), first, last)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withDates, "dates", false, "show the days each channel has log entries for")
	return cmd
}
