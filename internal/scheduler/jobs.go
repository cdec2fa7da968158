package scheduler

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sightline-ai/visibility-cli/internal/config"
	"github.com/sightline-ai/visibility-cli/internal/learning"
	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/network"
	"github.com/sightline-ai/visibility-cli/internal/prediction"
	"github.com/sightline-ai/visibility-cli/internal/store"
	"github.com/sightline-ai/visibility-cli/internal/syncer"
)

// Catalog job ids.
const (
	JobLearningCycle      = "learning-cycle"
	JobNetworkEffects     = "network-effects-sync"
	JobPredictionRefresh  = "prediction-refresh"
	JobSyncBacklog        = "sync-backlog-inspector"
	JobPredictionAccuracy = "prediction-accuracy-tracker"
)

// Deps carries the services the catalog jobs operate on.
type Deps struct {
	Store      store.Store
	Learning   *learning.Engine
	Syncer     *syncer.Engine
	Network    *network.Indexer
	Prediction *prediction.Engine
	Config     config.LearningConfig
}

// RegisterCatalog registers the built-in recurring jobs.
func RegisterCatalog(s *Scheduler, d Deps) error {
	jobs := []Job{
		{
			ID:       JobLearningCycle,
			Name:     "Learning cycle",
			Schedule: "@every 6h",
			Handler:  learningCycleHandler(d),
		},
		{
			ID:       JobNetworkEffects,
			Name:     "Network effects sync",
			Schedule: "@every 12h",
			Handler: func(ctx context.Context) error {
				_, err := d.Network.Reindex(ctx)
				return err
			},
		},
		{
			ID:       JobPredictionRefresh,
			Name:     "Prediction refresh",
			Schedule: "hourly",
			Handler: func(ctx context.Context) error {
				_, err := d.Prediction.Refresh(ctx)
				return err
			},
		},
		{
			ID:       JobSyncBacklog,
			Name:     "Sync backlog inspector",
			Schedule: "@every 5m",
			Handler:  syncBacklogHandler(d),
		},
		{
			ID:       JobPredictionAccuracy,
			Name:     "Prediction accuracy tracker",
			Schedule: "daily",
			// Reserved until realized-citation outcomes are recorded alongside
			// forecasts; there is nothing to compare yet.
			Handler: func(context.Context) error { return nil },
		},
	}
	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// learningCycleHandler runs the learning engine over every domain, skipping
// sparse ones, and auto-applies the strongest updates when the predicted
// improvement clears the threshold.
func learningCycleHandler(d Deps) JobHandler {
	log := zap.L().Named("jobs.learning")
	return func(ctx context.Context) error {
		domains, err := d.Store.ListDomains(ctx)
		if err != nil {
			return eris.Wrap(err, "learning cycle: list domains")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, domain := range domains {
			g.Go(func() error {
				return runDomainCycle(gctx, d, log, domain)
			})
		}
		return g.Wait()
	}
}

func runDomainCycle(ctx context.Context, d Deps, log *zap.Logger, domain string) error {
	citations, err := d.Store.ListCitations(ctx, domain, store.CitationFilter{})
	if err != nil {
		return eris.Wrapf(err, "learning cycle: citations %s", domain)
	}
	if len(citations) < d.Config.MinCitations {
		log.Debug("skipping sparse domain",
			zap.String("domain", domain),
			zap.Int("citations", len(citations)),
			zap.Int("min", d.Config.MinCitations))
		return nil
	}

	graph, err := d.Store.GetGraph(ctx, domain)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil
		}
		return eris.Wrapf(err, "learning cycle: graph %s", domain)
	}

	analysis := d.Learning.Analyze(graph, citations)
	if err := d.Store.SaveAnalysis(ctx, analysis); err != nil {
		return eris.Wrapf(err, "learning cycle: save analysis %s", domain)
	}

	if analysis.ExpectedImprovement() <= d.Config.ImprovementThreshold {
		return nil
	}
	picks := pickAutoApply(analysis.SuggestedUpdates, d.Config.MaxAutoApply)
	if len(picks) == 0 {
		return nil
	}

	applied, err := d.Learning.Apply(graph, picks)
	if err != nil {
		return eris.Wrapf(err, "learning cycle: apply %s", domain)
	}
	if err := d.Store.SaveGraph(ctx, applied); err != nil {
		return eris.Wrapf(err, "learning cycle: save graph %s", domain)
	}

	if d.Syncer != nil {
		if _, err := d.Syncer.BatchSync(applied, picks); err != nil {
			// Delivery is best effort here; the new graph version is already
			// persisted.
			log.Warn("batch sync incomplete",
				zap.String("domain", domain),
				zap.Error(err))
		}
	}

	log.Info("auto-applied updates",
		zap.String("domain", domain),
		zap.Int("applied", len(picks)),
		zap.Float64("expected_improvement", analysis.ExpectedImprovement()))
	return nil
}

// pickAutoApply selects up to limit critical/high priority updates. The
// input is already sorted by priority then expected lift.
func pickAutoApply(updates []model.GraphUpdate, limit int) []model.GraphUpdate {
	var picks []model.GraphUpdate
	for _, u := range updates {
		if len(picks) >= limit {
			break
		}
		if u.Priority != model.PriorityCritical && u.Priority != model.PriorityHigh {
			continue
		}
		picks = append(picks, u)
	}
	return picks
}

// syncBacklogHandler logs domains whose sync metrics show failures and the
// overall pending depth, so a stalled queue is visible before alerts fire.
func syncBacklogHandler(d Deps) JobHandler {
	log := zap.L().Named("jobs.backlog")
	return func(ctx context.Context) error {
		if d.Syncer == nil {
			return nil
		}
		pending := d.Syncer.PendingOperations()
		if pending > 0 {
			log.Warn("sync operations pending", zap.Int("pending", pending))
		}
		for _, dm := range d.Syncer.Metrics().All() {
			if dm.FailedOps > 0 {
				log.Warn("domain has failed sync operations",
					zap.String("domain", dm.Domain),
					zap.Int64("failed", dm.FailedOps),
					zap.Int64("total", dm.TotalOps))
			}
		}
		if d.Store != nil {
			if n, err := d.Store.CountDLQ(ctx); err == nil && n > 0 {
				log.Warn("dead letter queue is not empty", zap.Int("entries", n))
			}
		}
		return nil
	}
}
