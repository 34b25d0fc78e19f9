// Package cli implements ledgerctl, the batch ingestion and retrieval
// command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Ledgerlens/internal/app"
	"github.com/markdave123-py/Ledgerlens/internal/config"
)

var (
	verbose bool
	logJSON bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "ledgerctl ingests earnings documents and queries the collection",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		if verbose {
			cfg.LogLevel = "debug"
		}
		cfg.LogFormat = "text"
		if logJSON {
			cfg.LogFormat = "json"
		}
		return nil
	},
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, failed("error:"), err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON instead of text")
}

// openApp wires the configured backends for one command run.
func openApp(ctx context.Context) (*app.App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return app.NewApp(ctx, cfg, nil)
}
