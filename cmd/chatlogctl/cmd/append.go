package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
)

func newAppendCmd() *cobra.Command {
	var (
		channels []string
		source   string
		action   string
	)
	cmd := &cobra.Command{
		Use:     "append <message>",
		Short:   "Log a message directly and index it, bypassing Kafka",
		Example: `  chatlogctl append -C go --source ann 'Smith fixed the build'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(channels) == 0 {
				return fmt.Errorf("at least one --channel is required")
			}
			act := chat.Action(action)
			if !act.Valid() {
				return fmt.Errorf("unknown action %q", action)
			}
			for i := range channels {
				channels[i] = normalizeChannel(channels[i])
			}
			text := strings.Join(args, " ")
			now := time.Now()
			event := chat.Event{
				Source:  source,
				Action:  act,
				Message: &text,
				Time:    float64(now.UnixNano()) / float64(time.Second),
			}
			return withCore(func(core *bootstrap.Core) error {
				id, err := core.Log.Append(ctx, event, channels)
				if err != nil {
					return err
				}
				codes := 0
				for _, c := range channels {
					n, err := core.Engine.IndexMessage(ctx, chat.Message{Channel: c, ID: id, Body: text, CreatedAt: now})
					if err != nil {
						return err
					}
					codes += n
				}
				fmt.Fprintf(cmd.OutOrStdout(), "logged %s to %s (%d codes)\n", id, strings.Join(channels, ", "), codes)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&channels, "channel", "C", nil, "channel to log to (repeatable)")
	cmd.Flags().StringVar(&source, "source", "chatlogctl", "nick the message is from")
	cmd.Flags().StringVar(&action, "action", string(chat.ActionPubMsg), "event action")
	return cmd
}
