package syncer

import (
	"sort"
	"sync"
	"time"

	"github.com/sightline-ai/visibility-cli/internal/model"
)

// PlatformStats aggregates delivery outcomes for one platform within a
// domain.
type PlatformStats struct {
	Deliveries   int64   `json:"deliveries"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// DomainMetrics aggregates sync outcomes per domain. An operation counts as
// successful only when every platform completed.
type DomainMetrics struct {
	Domain        string                    `json:"domain"`
	TotalOps      int64                     `json:"total_ops"`
	SuccessfulOps int64                     `json:"successful_ops"`
	FailedOps     int64                     `json:"failed_ops"`
	AvgLatencyMs  float64                   `json:"avg_latency_ms"`
	Platforms     map[string]*PlatformStats `json:"platforms"`
	LastSyncAt    time.Time                 `json:"last_sync_at"`
}

// Metrics tracks per-domain sync statistics, updated after each operation
// settles.
type Metrics struct {
	mu      sync.RWMutex
	domains map[string]*DomainMetrics
	// latency sample counts per domain, for the moving average
	samples map[string]int64
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		domains: make(map[string]*DomainMetrics),
		samples: make(map[string]int64),
	}
}

// Record folds one settled operation into the domain's aggregates.
func (m *Metrics) Record(op *model.SyncOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dm, ok := m.domains[op.Domain]
	if !ok {
		dm = &DomainMetrics{Domain: op.Domain, Platforms: make(map[string]*PlatformStats)}
		m.domains[op.Domain] = dm
	}

	dm.TotalOps++
	if op.Succeeded() {
		dm.SuccessfulOps++
	} else {
		dm.FailedOps++
	}
	dm.LastSyncAt = time.Now().UTC()

	var latencySum int64
	var latencyN int64
	for name, ps := range op.Platforms {
		if ps.State == model.PlatformSkipped {
			continue
		}
		stats, ok := dm.Platforms[name]
		if !ok {
			stats = &PlatformStats{}
			dm.Platforms[name] = stats
		}
		stats.Deliveries++
		if ps.State == model.PlatformFailed {
			stats.Failures++
		}
		if ps.State == model.PlatformCompleted {
			stats.AvgLatencyMs += (float64(ps.LatencyMs) - stats.AvgLatencyMs) / float64(stats.Deliveries-stats.Failures)
			latencySum += ps.LatencyMs
			latencyN++
		}
	}
	if latencyN > 0 {
		opLatency := float64(latencySum) / float64(latencyN)
		m.samples[op.Domain]++
		dm.AvgLatencyMs += (opLatency - dm.AvgLatencyMs) / float64(m.samples[op.Domain])
	}
}

// Domain returns a copy of the metrics for one domain.
func (m *Metrics) Domain(domain string) (DomainMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dm, ok := m.domains[domain]
	if !ok {
		return DomainMetrics{}, false
	}
	return copyDomainMetrics(dm), true
}

// All returns a snapshot of every domain's metrics, sorted by domain.
func (m *Metrics) All() []DomainMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DomainMetrics, 0, len(m.domains))
	for _, dm := range m.domains {
		out = append(out, copyDomainMetrics(dm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

func copyDomainMetrics(dm *DomainMetrics) DomainMetrics {
	cp := *dm
	cp.Platforms = make(map[string]*PlatformStats, len(dm.Platforms))
	for name, ps := range dm.Platforms {
		s := *ps
		cp.Platforms[name] = &s
	}
	return cp
}
