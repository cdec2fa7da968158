package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

func TestCollectStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedTestDomain(t, st, "acme.com")
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID:       "dlq-1",
		Domain:   "acme.com",
		Platform: "gemini",
	}))

	summary, err := collectStatus(ctx, st)
	require.NoError(t, err)
	require.Len(t, summary.Domains, 1)
	assert.Equal(t, "acme.com", summary.Domains[0].Domain)
	assert.Equal(t, int64(1), summary.Domains[0].Version)
	assert.Equal(t, 1, summary.Domains[0].Entities)
	assert.Equal(t, 1, summary.Domains[0].Citations)
	assert.Equal(t, 1, summary.DLQDepth)
}

func TestFormatStatus(t *testing.T) {
	var buf bytes.Buffer
	formatStatus(&buf, &statusSummary{
		Domains: []domainStatus{
			{Domain: "acme.com", Version: 3, Entities: 12, Citations: 40},
		},
		DLQDepth: 2,
	})
	out := buf.String()
	assert.Contains(t, out, "acme.com")
	assert.Contains(t, out, "Dead letters: 2")
}

func TestFormatStatus_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStatus(&buf, &statusSummary{})
	assert.Contains(t, buf.String(), "No domains stored.")
}
