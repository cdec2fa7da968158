package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightline-ai/visibility-cli/internal/learning"
	"github.com/sightline-ai/visibility-cli/internal/network"
	"github.com/sightline-ai/visibility-cli/internal/prediction"
	"github.com/sightline-ai/visibility-cli/internal/scheduler"
	"github.com/sightline-ai/visibility-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and run the scheduled job catalog",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the job catalog with schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sched, err := buildCatalog(st)
		if err != nil {
			return err
		}

		formatJobsList(os.Stdout, sched.List())
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run one catalog job immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sched, err := buildCatalog(st)
		if err != nil {
			return err
		}

		if err := sched.TriggerNow(ctx, args[0]); err != nil {
			return eris.Wrap(err, "jobs run")
		}

		status, _ := sched.Status(args[0])
		if status.ErrorCount > 0 {
			return eris.Errorf("jobs run: job %s failed, see log", args[0])
		}
		fmt.Fprintf(os.Stdout, "Job %s completed.\n", args[0])
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}

// buildCatalog registers the job catalog without starting the dispatch loop.
// One-shot commands only need TriggerNow. No sync engine is wired: deliveries
// are a serve-mode concern.
func buildCatalog(st store.Store) (*scheduler.Scheduler, error) {
	sched := scheduler.New(cfg.Scheduler)
	err := scheduler.RegisterCatalog(sched, scheduler.Deps{
		Store:      st,
		Learning:   learning.NewEngine(),
		Network:    network.NewIndexer(st),
		Prediction: prediction.NewEngine(st),
		Config:     cfg.Learning,
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func formatJobsList(out io.Writer, jobs []scheduler.JobStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tENABLED\tRUNS\tERRORS")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\n",
			j.ID, j.Name, j.Schedule, j.Enabled, j.RunCount, j.ErrorCount)
	}
	_ = w.Flush()
}
