// scrumctl drives the SCRUM AI assistant from a terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/scrum-ai/internal/backend"
	"github.com/ashureev/scrum-ai/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
	flagJSON    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scrumctl",
		Short:         "Terminal client for the SCRUM AI assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print JSON instead of text")

	root.AddCommand(newClassifyCmd(), newChatCmd(), newConversationsCmd())
	return root
}

// loadConfig reads .env and the environment the same way the server does.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

func newBackendClient(cfg *config.Config) *backend.Client {
	return backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, slog.Default())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
