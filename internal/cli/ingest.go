package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
)

var (
	ingestReset   bool
	ingestPattern string
)

// ingestCmd ingests every matching document under a directory whose
// subdirectories are named after quarters.
var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest earnings documents from a directory tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir := cfg.EarningsDir
		if len(args) == 1 {
			dir = args[0]
		}
		pattern := cfg.SourcePattern
		if ingestPattern != "" {
			pattern = ingestPattern
		}

		sources, err := ingestion_engine.DiscoverSources(dir, pattern)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return fmt.Errorf("no documents matching %q under %s", pattern, dir)
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if ingestReset {
			if err := a.Ingestor.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), partial("collection cleared"))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %d documents from %s\n", heading("ingesting"), len(sources), dir)
		results := a.Ingestor.IngestBatch(ctx, sources)
		if hard := renderBatch(cmd.OutOrStdout(), results); hard == len(results) {
			return fmt.Errorf("every document failed")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "clear the collection before ingesting")
	ingestCmd.Flags().StringVar(&ingestPattern, "pattern", "", "doublestar pattern relative to dir (default SOURCE_PATTERN)")
	rootCmd.AddCommand(ingestCmd)
}
