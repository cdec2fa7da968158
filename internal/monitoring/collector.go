package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sightline-ai/visibility-cli/internal/scheduler"
	"github.com/sightline-ai/visibility-cli/internal/store"
	"github.com/sightline-ai/visibility-cli/internal/syncer"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Sync delivery metrics, aggregated across domains.
	SyncTotal    int64   `json:"sync_total"`
	SyncComplete int64   `json:"sync_complete"`
	SyncFailed   int64   `json:"sync_failed"`
	SyncFailRate float64 `json:"sync_fail_rate"`
	SyncPending  int     `json:"sync_pending"`

	// Scheduler job health.
	JobErrors map[string]int64 `json:"job_errors,omitempty"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	CollectedAt time.Time `json:"collected_at"`
}

// SyncSource abstracts the syncer engine methods the collector reads.
type SyncSource interface {
	PendingOperations() int
	Metrics() *syncer.Metrics
}

// JobSource abstracts the scheduler methods the collector reads.
type JobSource interface {
	List() []scheduler.JobStatus
}

// Collector gathers metrics from the sync engine, the scheduler, and the
// store. Any source may be nil; its section of the snapshot stays zero.
type Collector struct {
	store store.Store
	sync  SyncSource
	jobs  JobSource
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store, sync SyncSource, jobs JobSource) *Collector {
	return &Collector{store: st, sync: sync, jobs: jobs}
}

// Collect gathers a snapshot of system metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		CollectedAt: time.Now().UTC(),
	}

	if c.sync != nil {
		snap.SyncPending = c.sync.PendingOperations()
		for _, dm := range c.sync.Metrics().All() {
			snap.SyncTotal += dm.TotalOps
			snap.SyncComplete += dm.SuccessfulOps
			snap.SyncFailed += dm.FailedOps
		}
		settled := snap.SyncComplete + snap.SyncFailed
		if settled > 0 {
			snap.SyncFailRate = float64(snap.SyncFailed) / float64(settled)
		}
	}

	if c.jobs != nil {
		for _, js := range c.jobs.List() {
			if js.ErrorCount > 0 {
				if snap.JobErrors == nil {
					snap.JobErrors = make(map[string]int64)
				}
				snap.JobErrors[js.ID] = js.ErrorCount
			}
		}
	}

	if c.store != nil {
		dlqCount, err := c.store.CountDLQ(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count dlq")
		}
		snap.DLQDepth = dlqCount
	}

	return snap, nil
}
