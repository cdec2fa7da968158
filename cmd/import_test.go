package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/store"
)

const testSeed = `
graphs:
  - domain: acme.com
    entities:
      - id: e1
        type: organization
        name: Acme
        confidence: 0.8
      - id: e2
        type: product
        name: Acme Analytics
        confidence: 0.7
    relationships:
      - source_id: e1
        target_id: e2
        type: offers
        confidence: 0.75
    claims:
      - id: c1
        statement: Acme provides realtime analytics
        confidence: 0.6
citations:
  - domain: acme.com
    platform: chatgpt
    response_text: Acme Analytics is a popular choice
    url: https://acme.com/analytics
    cited_at: 2026-08-01T12:00:00Z
  - domain: acme.com
    platform: perplexity
    response_text: Acme ships dashboards
    url: https://acme.com
    cited_at: 2026-08-02T12:00:00Z
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportSeed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	graphs, citations, err := importSeed(ctx, st, writeSeedFile(t, testSeed))
	require.NoError(t, err)
	assert.Equal(t, 1, graphs)
	assert.Equal(t, 2, citations)

	g, err := st.GetGraph(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Metadata.Version)
	require.Len(t, g.Entities, 2)
	assert.Equal(t, "Acme", g.Entities[0].Name)
	require.Len(t, g.Relationships, 1)
	require.Len(t, g.Claims, 1)

	cs, err := st.ListCitations(ctx, "acme.com", store.CitationFilter{})
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "chatgpt", cs[0].Platform)
	assert.NotEmpty(t, cs[0].ID)
}

func TestImportSeed_MissingFile(t *testing.T) {
	st := newTestStore(t)
	_, _, err := importSeed(context.Background(), st, "/nonexistent/seed.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")
}

func TestImportSeed_GraphWithoutDomain(t *testing.T) {
	st := newTestStore(t)
	path := writeSeedFile(t, "graphs:\n  - entities:\n      - id: e1\n        name: Orphan\n")
	_, _, err := importSeed(context.Background(), st, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph without domain")
}

func TestImportSeed_InvalidYAML(t *testing.T) {
	st := newTestStore(t)
	path := writeSeedFile(t, "graphs: [unterminated")
	_, _, err := importSeed(context.Background(), st, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse seed file")
}
