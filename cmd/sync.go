package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect synchronization state",
}

var syncDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead-lettered platform deliveries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		domain, _ := cmd.Flags().GetString("domain")
		platformName, _ := cmd.Flags().GetString("platform")
		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListDLQ(ctx, resilience.DLQFilter{
			Domain:    domain,
			Platform:  platformName,
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "sync dlq")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}

		formatDLQList(os.Stdout, entries)
		return nil
	},
}

func init() {
	syncDLQCmd.Flags().String("domain", "", "filter by domain")
	syncDLQCmd.Flags().String("platform", "", "filter by platform")
	syncDLQCmd.Flags().String("error-type", "", "filter by error type (transient, permanent)")
	syncDLQCmd.Flags().Int("limit", 50, "max entries to display")

	syncCmd.AddCommand(syncDLQCmd)
	rootCmd.AddCommand(syncCmd)
}

func formatDLQList(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDOMAIN\tPLATFORM\tTYPE\tRETRIES\tFAILED_AT\tERROR")
	for _, e := range entries {
		errMsg := e.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(e.ID),
			e.Domain,
			e.Platform,
			e.ErrorType,
			e.RetryCount,
			e.LastFailedAt.Format(time.RFC3339),
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
