package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline-ai/visibility-cli/internal/model"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect per-domain knowledge graphs",
}

var graphListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains with a stored graph",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		domains, err := st.ListDomains(ctx)
		if err != nil {
			return eris.Wrap(err, "graph list")
		}
		if len(domains) == 0 {
			fmt.Fprintln(os.Stderr, "No graphs stored.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "DOMAIN\tVERSION\tENTITIES\tRELATIONSHIPS\tCLAIMS\tUPDATED")
		for _, domain := range domains {
			g, err := st.GetGraph(ctx, domain)
			if err != nil {
				return eris.Wrapf(err, "graph list: %s", domain)
			}
			formatGraphRow(w, g)
		}
		return w.Flush()
	},
}

var graphShowCmd = &cobra.Command{
	Use:   "show <domain>",
	Short: "Print a domain's full graph as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		g, err := st.GetGraph(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "graph show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	},
}

func init() {
	graphCmd.AddCommand(graphListCmd)
	graphCmd.AddCommand(graphShowCmd)
	rootCmd.AddCommand(graphCmd)
}

func formatGraphRow(w io.Writer, g *model.KnowledgeGraph) {
	updated := ""
	if !g.Metadata.UpdatedAt.IsZero() {
		updated = g.Metadata.UpdatedAt.Format("2006-01-02 15:04")
	}
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
		g.Domain,
		g.Metadata.Version,
		len(g.Entities),
		len(g.Relationships),
		len(g.Claims),
		updated,
	)
}
