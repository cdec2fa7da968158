// Package prediction computes per-domain citation-probability forecasts from
// graph completeness and recent citation velocity.
package prediction

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/store"
)

// velocityWindow is how far back recent citations count toward velocity.
const velocityWindow = 30 * 24 * time.Hour

// Engine forecasts citation probability per domain.
type Engine struct {
	store store.Store
	log   *zap.Logger

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewEngine creates a prediction engine.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store:   st,
		log:     zap.L().Named("prediction"),
		nowFunc: time.Now,
	}
}

// Forecast computes the citation forecast for one domain. A missing graph
// propagates store.ErrNotFound.
func (e *Engine) Forecast(ctx context.Context, domain string) (model.CitationPrediction, error) {
	graph, err := e.store.GetGraph(ctx, domain)
	if err != nil {
		return model.CitationPrediction{}, eris.Wrapf(err, "prediction: forecast %s", domain)
	}
	citations, err := e.store.ListCitations(ctx, domain, store.CitationFilter{})
	if err != nil {
		return model.CitationPrediction{}, eris.Wrapf(err, "prediction: citations %s", domain)
	}

	now := e.nowFunc().UTC()
	recent := 0
	for _, c := range citations {
		if now.Sub(c.CitedAt) <= velocityWindow {
			recent++
		}
	}
	// Citations per week over the window.
	velocity := float64(recent) / (velocityWindow.Hours() / (7 * 24))

	// Graph completeness, 0..1: same capped components the visibility score
	// uses, normalized.
	completeness := (min(50, float64(len(graph.Entities))*2) +
		min(30, float64(len(graph.Relationships))*1.5) +
		min(20, float64(len(citations))*2)) / 100

	probability := min(0.95, 0.05+completeness*0.5+min(0.4, velocity*0.1))

	p := model.CitationPrediction{
		Domain:          domain,
		Probability:     probability,
		ExpectedPerWeek: velocity,
		Factors: map[string]float64{
			"graph_completeness": completeness,
			"recent_citations":   float64(recent),
			"weekly_velocity":    velocity,
		},
		GeneratedAt: now,
	}

	e.log.Debug("forecast computed",
		zap.String("domain", domain),
		zap.Float64("probability", p.Probability),
		zap.Float64("expected_per_week", p.ExpectedPerWeek))
	return p, nil
}

// Refresh recomputes and persists the forecast for every domain. Domains
// that fail are logged and skipped; the first error is returned after the
// full pass.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	domains, err := e.store.ListDomains(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "prediction: list domains")
	}

	refreshed := 0
	var firstErr error
	for _, domain := range domains {
		p, err := e.Forecast(ctx, domain)
		if err == nil {
			err = e.store.SavePrediction(ctx, p)
		}
		if err != nil {
			e.log.Warn("forecast refresh failed", zap.String("domain", domain), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		refreshed++
	}
	return refreshed, firstErr
}
