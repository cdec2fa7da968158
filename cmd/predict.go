package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline-ai/visibility-cli/internal/prediction"
)

var predictCmd = &cobra.Command{
	Use:   "predict <domain>",
	Short: "Forecast citation probability for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := prediction.NewEngine(st).Forecast(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var predictRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute and persist forecasts for every domain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := prediction.NewEngine(st).Refresh(ctx)
		if err != nil {
			return eris.Wrap(err, "predict refresh")
		}

		fmt.Fprintf(os.Stdout, "Refreshed %d forecast(s).\n", n)
		return nil
	},
}

func init() {
	predictCmd.AddCommand(predictRefreshCmd)
	rootCmd.AddCommand(predictCmd)
}
