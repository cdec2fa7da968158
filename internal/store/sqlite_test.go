package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func storeTestGraph(domain string) *model.KnowledgeGraph {
	return &model.KnowledgeGraph{
		Domain: domain,
		Entities: []model.Entity{
			{ID: "e1", Type: model.EntityTypeOrganization, Name: "Acme", Confidence: 0.9},
			{ID: "e2", Type: model.EntityTypeProduct, Name: "Acme Analytics", Confidence: 0.8},
		},
		Relationships: []model.Relationship{
			{SourceID: "e1", TargetID: "e2", Type: "offers", Confidence: 0.85},
		},
		Claims: []model.Claim{
			{ID: "c1", Statement: "Acme is the best analytics platform", Confidence: 0.7},
		},
		Metadata: model.GraphMetadata{Version: 1, UpdatedAt: time.Now().UTC()},
	}
}

// --- Graphs ---

func TestSQLite_Graph_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveGraph(ctx, storeTestGraph("acme.com")))

	g, err := st.GetGraph(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", g.Domain)
	assert.Len(t, g.Entities, 2)
	assert.Len(t, g.Relationships, 1)
	assert.Len(t, g.Claims, 1)
	assert.Equal(t, int64(1), g.Metadata.Version)
}

func TestSQLite_Graph_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetGraph(context.Background(), "unknown.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Graph_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	g := storeTestGraph("acme.com")
	require.NoError(t, st.SaveGraph(ctx, g))

	g.Metadata.Version = 2
	g.Entities = append(g.Entities, model.Entity{ID: "e3", Type: model.EntityTypeConcept, Name: "analytics", Confidence: 0.7})
	require.NoError(t, st.SaveGraph(ctx, g))

	fetched, err := st.GetGraph(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetched.Metadata.Version)
	assert.Len(t, fetched.Entities, 3)
}

func TestSQLite_ListDomains(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveGraph(ctx, storeTestGraph("beta.io")))
	require.NoError(t, st.SaveGraph(ctx, storeTestGraph("acme.com")))

	domains, err := st.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com", "beta.io"}, domains)
}

// --- Citations ---

func TestSQLite_Citations_InsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	err := st.InsertCitation(ctx, model.Citation{
		ID:           "cit-2",
		Platform:     "claude",
		ResponseText: "Acme offers analytics",
		URL:          "https://acme.com",
		CitedAt:      base.Add(time.Hour),
	}, "acme.com")
	require.NoError(t, err)

	err = st.InsertCitation(ctx, model.Citation{
		ID:           "cit-1",
		Platform:     "chatgpt",
		ResponseText: "Acme is a vendor",
		URL:          "https://acme.com",
		CitedAt:      base,
	}, "acme.com")
	require.NoError(t, err)

	// Listed in cited_at order regardless of insert order.
	cits, err := st.ListCitations(ctx, "acme.com", CitationFilter{})
	require.NoError(t, err)
	require.Len(t, cits, 2)
	assert.Equal(t, "cit-1", cits[0].ID)
	assert.Equal(t, "cit-2", cits[1].ID)
}

func TestSQLite_Citations_GeneratesID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.InsertCitation(ctx, model.Citation{
		Platform: "perplexity", ResponseText: "Acme", URL: "https://acme.com", CitedAt: time.Now().UTC(),
	}, "acme.com")
	require.NoError(t, err)

	cits, err := st.ListCitations(ctx, "acme.com", CitationFilter{})
	require.NoError(t, err)
	require.Len(t, cits, 1)
	assert.NotEmpty(t, cits[0].ID)
}

func TestSQLite_Citations_Bulk(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cs := []model.Citation{
		{Platform: "chatgpt", ResponseText: "a", URL: "u", CitedAt: time.Now().UTC()},
		{Platform: "gemini", ResponseText: "b", URL: "u", CitedAt: time.Now().UTC()},
		{Platform: "copilot", ResponseText: "c", URL: "u", CitedAt: time.Now().UTC()},
	}
	n, err := st.InsertCitations(ctx, cs, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cits, err := st.ListCitations(ctx, "acme.com", CitationFilter{})
	require.NoError(t, err)
	assert.Len(t, cits, 3)
}

func TestSQLite_Citations_FilterAndLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, platform := range []string{"chatgpt", "chatgpt", "claude"} {
		err := st.InsertCitation(ctx, model.Citation{
			Platform: platform, ResponseText: "t", URL: "u", CitedAt: base.Add(time.Duration(i) * time.Hour),
		}, "acme.com")
		require.NoError(t, err)
	}

	cits, err := st.ListCitations(ctx, "acme.com", CitationFilter{Platform: "chatgpt"})
	require.NoError(t, err)
	assert.Len(t, cits, 2)

	cits, err = st.ListCitations(ctx, "acme.com", CitationFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, cits, 1)
}

func TestSQLite_Citations_DomainIsolation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.InsertCitation(ctx, model.Citation{
		Platform: "chatgpt", ResponseText: "t", URL: "u", CitedAt: time.Now().UTC(),
	}, "acme.com")
	require.NoError(t, err)

	cits, err := st.ListCitations(ctx, "other.io", CitationFilter{})
	require.NoError(t, err)
	assert.Empty(t, cits)
}

// --- Learning artifacts ---

func TestSQLite_SaveAnalysis_GeneratesID(t *testing.T) {
	st := newTestSQLiteStore(t)

	a := &model.LearningAnalysis{Domain: "acme.com", CurrentScore: 12.5, AnalyzedAt: time.Now().UTC()}
	require.NoError(t, st.SaveAnalysis(context.Background(), a))
	assert.NotEmpty(t, a.ID)
}

func TestSQLite_Prediction_SaveGetOverwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := model.CitationPrediction{
		Domain: "acme.com", Probability: 0.4, ExpectedPerWeek: 2.5,
		GeneratedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SavePrediction(ctx, p))

	p.Probability = 0.6
	require.NoError(t, st.SavePrediction(ctx, p))

	fetched, err := st.GetPrediction(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, 0.6, fetched.Probability)

	_, err = st.GetPrediction(ctx, "unknown.com")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_NetworkEffects_SaveAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.SaveNetworkEffect(ctx, model.NetworkEffect{
		EntityName: "acme", Domains: []string{"acme.com", "beta.io"}, CitationCount: 7, Strength: 0.6, UpdatedAt: now,
	}))
	require.NoError(t, st.SaveNetworkEffect(ctx, model.NetworkEffect{
		EntityName: "acme", Domains: []string{"acme.com", "beta.io", "gamma.dev"}, CitationCount: 9, Strength: 0.8, UpdatedAt: now,
	}))

	effects, err := st.ListNetworkEffects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, effects, 1) // upsert by entity name
	assert.Equal(t, 9, effects[0].CitationCount)
	assert.Len(t, effects[0].Domains, 3)
}

func TestSQLite_GlobalEntity_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveGlobalEntity(ctx, model.GlobalEntity{
		Name: "acme", Domains: []string{"acme.com"}, Citations: 3, UpdatedAt: time.Now().UTC(),
	}))

	e, err := st.GetGlobalEntity(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Citations)

	_, err = st.GetGlobalEntity(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Sync DLQ ---

func TestSQLite_DLQ_EnqueueListCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		Domain: "acme.com", OperationID: "op-1", Platform: "gemini",
		Error: "simulated failure", ErrorType: "transient", RetryCount: 2,
		CreatedAt: now, LastFailedAt: now,
	}))
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		Domain: "beta.io", OperationID: "op-2", Platform: "copilot",
		Error: "bad payload", ErrorType: "permanent", RetryCount: 2,
		CreatedAt: now, LastFailedAt: now,
	}))

	n, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{Domain: "acme.com"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "op-1", entries[0].OperationID)
	assert.Equal(t, "gemini", entries[0].Platform)

	entries, err = st.ListDLQ(ctx, resilience.DLQFilter{ErrorType: "permanent"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "op-2", entries[0].OperationID)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
