// Package cmd provides the chatlogctl commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/logger"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

// newCore is swapped out in tests to point at an in-memory Redis.
var newCore = func(cfg *config.Config) (*bootstrap.Core, error) {
	return bootstrap.NewCore(cfg, nil)
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatlogctl",
		Short:         "Administer the chat log search index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			// stdout is for command output
			logger.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newReindexCmd(),
		newSearchCmd(),
		newChannelsCmd(),
		newAnalyzeCmd(),
		newAppendCmd(),
		newHistoryCmd(),
	)
	return cmd
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return err
	}
	return nil
}

// withCore opens the index for the duration of fn.
func withCore(fn func(core *bootstrap.Core) error) error {
	core, err := newCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(core)
}

func normalizeChannel(c string) string {
	c = strings.TrimSpace(c)
	if c != "" && !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	return c
}
