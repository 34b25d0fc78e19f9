package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/core/retrieval"
)

var (
	retrieveQuarter string
	retrieveJSON    bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve narrative|tables|all <query>",
	Short: "Query the collection and print the formatted context",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := retrieval.ParseMode(args[0])
		if err != nil {
			return err
		}
		query := strings.Join(args[1:], " ")

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.Retrieval.RetrieveMode(ctx, mode, query, retrieveQuarter, filter.Expr{})
		if err != nil {
			return err
		}
		if retrieveJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
		return nil
	},
}

func init() {
	retrieveCmd.Flags().StringVarP(&retrieveQuarter, "quarter", "q", "", "restrict to one quarter, e.g. Q1-2025")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(retrieveCmd)
}
