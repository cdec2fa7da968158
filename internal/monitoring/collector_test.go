package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
	"github.com/sightline-ai/visibility-cli/internal/scheduler"
	"github.com/sightline-ai/visibility-cli/internal/store"
	"github.com/sightline-ai/visibility-cli/internal/syncer"
)

type stubSync struct {
	pending int
	metrics *syncer.Metrics
}

func (s *stubSync) PendingOperations() int   { return s.pending }
func (s *stubSync) Metrics() *syncer.Metrics { return s.metrics }

type stubJobs struct {
	statuses []scheduler.JobStatus
}

func (s *stubJobs) List() []scheduler.JobStatus { return s.statuses }

func settledOp(domain string, succeeded bool) *model.SyncOperation {
	state := model.PlatformCompleted
	if !succeeded {
		state = model.PlatformFailed
	}
	return &model.SyncOperation{
		ID:     "op",
		Domain: domain,
		Platforms: map[string]*model.PlatformSyncStatus{
			"chatgpt": {State: state, LatencyMs: 10},
		},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID:        "dlq-1",
		Domain:    "acme.com",
		Platform:  "chatgpt",
		ErrorType: "transient",
	}))

	metrics := syncer.NewMetrics()
	metrics.Record(settledOp("acme.com", true))
	metrics.Record(settledOp("acme.com", true))
	metrics.Record(settledOp("beta.io", false))

	c := NewCollector(st, &stubSync{pending: 3, metrics: metrics}, &stubJobs{
		statuses: []scheduler.JobStatus{
			{ID: "learning-cycle", ErrorCount: 2},
			{ID: "prediction-refresh", ErrorCount: 0},
		},
	})

	snap, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.SyncTotal)
	assert.Equal(t, int64(2), snap.SyncComplete)
	assert.Equal(t, int64(1), snap.SyncFailed)
	assert.InDelta(t, 1.0/3.0, snap.SyncFailRate, 1e-9)
	assert.Equal(t, 3, snap.SyncPending)
	assert.Equal(t, 1, snap.DLQDepth)
	assert.Equal(t, map[string]int64{"learning-cycle": 2}, snap.JobErrors)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_NilSources(t *testing.T) {
	c := NewCollector(nil, nil, nil)
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.SyncTotal)
	assert.Equal(t, 0, snap.SyncPending)
	assert.Equal(t, 0, snap.DLQDepth)
	assert.Empty(t, snap.JobErrors)
}

func TestCollector_NoSettledOps(t *testing.T) {
	c := NewCollector(nil, &stubSync{metrics: syncer.NewMetrics()}, nil)
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.SyncFailRate)
}

func TestCheckerCheck_SendsOnThresholdBreach(t *testing.T) {
	// Exercised through the unexported check to avoid running the ticker.
	metrics := syncer.NewMetrics()
	for i := 0; i < 6; i++ {
		metrics.Record(settledOp("acme.com", false))
	}

	received := make(chan Alert, 8)
	srv := newWebhookServer(t, received)

	cfg := testMonitoringConfig(srv.URL)
	checker := NewChecker(
		NewCollector(nil, &stubSync{metrics: metrics}, nil),
		NewAlerter(cfg),
		cfg,
	)
	checker.check(context.Background(), testLogger())

	select {
	case alert := <-received:
		assert.Equal(t, AlertSyncFailureRate, alert.Type)
	case <-time.After(time.Second):
		t.Fatal("no alert delivered")
	}
}
