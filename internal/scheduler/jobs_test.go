package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/config"
	"github.com/sightline-ai/visibility-cli/internal/learning"
	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/network"
	"github.com/sightline-ai/visibility-cli/internal/prediction"
	"github.com/sightline-ai/visibility-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testDeps(t *testing.T, st store.Store) Deps {
	t.Helper()
	return Deps{
		Store:      st,
		Learning:   learning.NewEngine(),
		Network:    network.NewIndexer(st),
		Prediction: prediction.NewEngine(st),
		Config: config.LearningConfig{
			MinCitations:         5,
			ImprovementThreshold: 0.1,
			MaxAutoApply:         10,
		},
	}
}

func seedGraph(t *testing.T, st store.Store, domain string) {
	t.Helper()
	require.NoError(t, st.SaveGraph(context.Background(), &model.KnowledgeGraph{
		Domain: domain,
		Entities: []model.Entity{
			{ID: "e1", Type: model.EntityTypeOrganization, Name: "Acme", Confidence: 0.5},
			{ID: "e2", Type: model.EntityTypeProduct, Name: "Widget", Confidence: 0.5},
		},
		Relationships: []model.Relationship{
			{SourceID: "e1", TargetID: "e2", Type: "offers", Confidence: 0.6},
		},
		Metadata: model.GraphMetadata{Version: 1},
	}))
}

func seedCitations(t *testing.T, st store.Store, domain, text string, n int) {
	t.Helper()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, st.InsertCitation(context.Background(), model.Citation{
			Platform:     "chatgpt",
			ResponseText: text,
			URL:          "https://" + domain,
			CitedAt:      base.Add(time.Duration(i) * time.Hour),
		}, domain))
	}
}

func TestRegisterCatalog(t *testing.T) {
	st := newTestStore(t)
	s := New(config.SchedulerConfig{TickMs: 100})
	require.NoError(t, RegisterCatalog(s, testDeps(t, st)))

	list := s.List()
	require.Len(t, list, 5)
	ids := make([]string, len(list))
	for i, js := range list {
		ids[i] = js.ID
		assert.True(t, js.Enabled, js.ID)
		assert.Greater(t, js.Interval, time.Duration(0), js.ID)
	}
	assert.Equal(t, []string{
		JobLearningCycle, JobNetworkEffects, JobPredictionRefresh,
		JobSyncBacklog, JobPredictionAccuracy,
	}, ids)
}

func TestLearningCycle_SkipsSparseDomain(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedGraph(t, st, "sparse.com")
	seedCitations(t, st, "sparse.com", "Acme everywhere", 2) // below MinCitations

	handler := learningCycleHandler(testDeps(t, st))
	require.NoError(t, handler(ctx))

	g, err := st.GetGraph(ctx, "sparse.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Metadata.Version)
	assert.Equal(t, 0.5, g.EntityByID("e1").Confidence)
}

func TestLearningCycle_AutoAppliesWhenImprovementClearsThreshold(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedGraph(t, st, "acme.com")
	seedCitations(t, st, "acme.com", "Acme ships great software", 6)

	handler := learningCycleHandler(testDeps(t, st))
	require.NoError(t, handler(ctx))

	g, err := st.GetGraph(ctx, "acme.com")
	require.NoError(t, err)
	// One high-priority entity update auto-applied: version bumped and the
	// entity confidence raised by the 6-citation boost (0.12).
	assert.Equal(t, int64(2), g.Metadata.Version)
	assert.InDelta(t, 0.62, g.EntityByID("e1").Confidence, 1e-9)
	// Unmentioned entity untouched.
	assert.Equal(t, 0.5, g.EntityByID("e2").Confidence)
}

func TestLearningCycle_BelowThresholdLeavesGraphAlone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedGraph(t, st, "acme.com")
	seedCitations(t, st, "acme.com", "Acme ships great software", 6)

	deps := testDeps(t, st)
	deps.Config.ImprovementThreshold = 50.0
	handler := learningCycleHandler(deps)
	require.NoError(t, handler(ctx))

	g, err := st.GetGraph(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Metadata.Version)
}

func TestPickAutoApply_OnlyCriticalAndHigh(t *testing.T) {
	updates := []model.GraphUpdate{
		{ID: "u1", Priority: model.PriorityCritical},
		{ID: "u2", Priority: model.PriorityHigh},
		{ID: "u3", Priority: model.PriorityMedium},
		{ID: "u4", Priority: model.PriorityLow},
		{ID: "u5", Priority: model.PriorityHigh},
	}

	picks := pickAutoApply(updates, 10)
	require.Len(t, picks, 3)
	assert.Equal(t, "u1", picks[0].ID)
	assert.Equal(t, "u2", picks[1].ID)
	assert.Equal(t, "u5", picks[2].ID)

	picks = pickAutoApply(updates, 2)
	assert.Len(t, picks, 2)
}

func TestSyncBacklogHandler_NoSyncerIsNoOp(t *testing.T) {
	handler := syncBacklogHandler(Deps{})
	require.NoError(t, handler(context.Background()))
}

func TestPredictionRefreshJob_WritesForecasts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedGraph(t, st, "acme.com")

	s := New(config.SchedulerConfig{})
	require.NoError(t, RegisterCatalog(s, testDeps(t, st)))
	require.NoError(t, s.TriggerNow(ctx, JobPredictionRefresh))

	p, err := st.GetPrediction(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", p.Domain)

	st2, _ := s.Status(JobPredictionRefresh)
	assert.Equal(t, int64(1), st2.RunCount)
}
