package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/learning"
	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/store"
	"github.com/sightline-ai/visibility-cli/internal/syncer"
)

var learnApply bool

var learnCmd = &cobra.Command{
	Use:   "learn <domain>",
	Short: "Analyze citation evidence for a domain and suggest graph updates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := runLearningPass(ctx, st, learning.NewEngine(), nil, args[0], learnApply)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	learnCmd.Flags().BoolVar(&learnApply, "apply", false, "apply the suggested updates and persist the new graph version")
	rootCmd.AddCommand(learnCmd)
}

// learnResult is the combined outcome of one analyze (and optional apply)
// pass over a domain.
type learnResult struct {
	Analysis     *model.LearningAnalysis `json:"analysis"`
	Applied      int                     `json:"applied"`
	GraphVersion int64                   `json:"graph_version,omitempty"`
	SyncOps      []string                `json:"sync_ops,omitempty"`
}

// runLearningPass analyzes one domain's citations against its graph and
// persists the analysis. With apply set it also applies every suggested
// update, saves the new graph version, and, when a sync engine is running,
// queues the changes for platform delivery.
func runLearningPass(ctx context.Context, st store.Store, eng *learning.Engine, sy *syncer.Engine, domain string, apply bool) (*learnResult, error) {
	graph, err := st.GetGraph(ctx, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "learn: graph %s", domain)
	}

	citations, err := st.ListCitations(ctx, domain, store.CitationFilter{})
	if err != nil {
		return nil, eris.Wrapf(err, "learn: citations %s", domain)
	}

	analysis := eng.Analyze(graph, citations)
	if err := st.SaveAnalysis(ctx, analysis); err != nil {
		return nil, eris.Wrapf(err, "learn: save analysis %s", domain)
	}

	res := &learnResult{Analysis: analysis}
	if !apply || len(analysis.SuggestedUpdates) == 0 {
		return res, nil
	}

	applied, err := eng.Apply(graph, analysis.SuggestedUpdates)
	if err != nil {
		return nil, eris.Wrapf(err, "learn: apply %s", domain)
	}
	if err := st.SaveGraph(ctx, applied); err != nil {
		return nil, eris.Wrapf(err, "learn: save graph %s", domain)
	}
	res.Applied = len(analysis.SuggestedUpdates)
	res.GraphVersion = applied.Metadata.Version

	if sy != nil {
		ids, err := sy.BatchSync(applied, analysis.SuggestedUpdates)
		if err != nil {
			zap.L().Warn("batch sync incomplete",
				zap.String("domain", domain),
				zap.Error(err))
		}
		res.SyncOps = ids
	}

	return res, nil
}
