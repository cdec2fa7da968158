package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/network"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Cross-domain entity evidence",
}

var networkReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild global entity rollups and network effects from all domains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := network.NewIndexer(st).Reindex(ctx)
		if err != nil {
			return eris.Wrap(err, "network reindex")
		}

		fmt.Fprintf(os.Stdout, "Indexed %d network effect(s).\n", n)
		return nil
	},
}

var networkEffectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List entities cited across multiple domains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		effects, err := st.ListNetworkEffects(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "network effects")
		}
		if len(effects) == 0 {
			fmt.Fprintln(os.Stderr, "No network effects recorded. Run `visibility network reindex` first.")
			return nil
		}

		formatNetworkEffects(os.Stdout, effects)
		return nil
	},
}

func init() {
	networkEffectsCmd.Flags().Int("limit", 50, "max effects to display")

	networkCmd.AddCommand(networkReindexCmd)
	networkCmd.AddCommand(networkEffectsCmd)
	rootCmd.AddCommand(networkCmd)
}

func formatNetworkEffects(out io.Writer, effects []model.NetworkEffect) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tDOMAINS\tCITATIONS\tSTRENGTH")
	for _, e := range effects {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n",
			e.EntityName, len(e.Domains), e.CitationCount, e.Strength)
	}
	_ = w.Flush()
}
