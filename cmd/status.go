package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline-ai/visibility-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize stored graphs, citations, and sync dead letters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := collectStatus(ctx, st)
		if err != nil {
			return err
		}
		formatStatus(os.Stdout, summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type domainStatus struct {
	Domain    string
	Version   int64
	Entities  int
	Citations int
}

type statusSummary struct {
	Domains  []domainStatus
	DLQDepth int
}

func collectStatus(ctx context.Context, st store.Store) (*statusSummary, error) {
	domains, err := st.ListDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "status: list domains")
	}

	summary := &statusSummary{}
	for _, domain := range domains {
		g, err := st.GetGraph(ctx, domain)
		if err != nil {
			return nil, eris.Wrapf(err, "status: graph %s", domain)
		}
		citations, err := st.ListCitations(ctx, domain, store.CitationFilter{})
		if err != nil {
			return nil, eris.Wrapf(err, "status: citations %s", domain)
		}
		summary.Domains = append(summary.Domains, domainStatus{
			Domain:    domain,
			Version:   g.Metadata.Version,
			Entities:  len(g.Entities),
			Citations: len(citations),
		})
	}

	depth, err := st.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "status: count dlq")
	}
	summary.DLQDepth = depth

	return summary, nil
}

func formatStatus(out io.Writer, s *statusSummary) {
	if len(s.Domains) == 0 {
		fmt.Fprintln(out, "No domains stored.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "DOMAIN\tVERSION\tENTITIES\tCITATIONS")
		for _, d := range s.Domains {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", d.Domain, d.Version, d.Entities, d.Citations)
		}
		_ = w.Flush()
	}
	fmt.Fprintf(out, "Dead letters: %d\n", s.DLQDepth)
}
