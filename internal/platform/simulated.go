package platform

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sightline-ai/visibility-cli/internal/config"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

// SimulatedAdapter stands in for a real platform integration: it rate-limits
// outbound calls, sleeps a jittered latency, and fails a configurable
// fraction of calls with a transient error. Real ingestion protocols are out
// of scope for this core.
type SimulatedAdapter struct {
	name        string
	baseLatency time.Duration
	failureRate float64
	limiter     *rate.Limiter

	mu    sync.Mutex
	randF func() float64                                   // injectable for tests
	sleep func(ctx context.Context, d time.Duration) error // injectable for tests
}

// SimulatedOption customizes a SimulatedAdapter.
type SimulatedOption func(*SimulatedAdapter)

// WithRandFunc fixes the failure roll, for deterministic tests.
func WithRandFunc(f func() float64) SimulatedOption {
	return func(a *SimulatedAdapter) { a.randF = f }
}

// WithSleepFunc replaces the latency sleep, for fast tests.
func WithSleepFunc(f func(ctx context.Context, d time.Duration) error) SimulatedOption {
	return func(a *SimulatedAdapter) { a.sleep = f }
}

// NewSimulatedAdapter creates a simulated platform adapter.
func NewSimulatedAdapter(name string, baseLatency time.Duration, failureRate float64, ratePerSec float64, opts ...SimulatedOption) *SimulatedAdapter {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
	}
	a := &SimulatedAdapter{
		name:        name,
		baseLatency: baseLatency,
		failureRate: failureRate,
		limiter:     limiter,
		randF:       rand.Float64,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegistryFromConfig builds the adapter registry for the configured platform
// names.
func RegistryFromConfig(cfg config.PlatformsConfig) *Registry {
	reg := NewRegistry()
	for _, name := range cfg.Names {
		reg.Register(NewSimulatedAdapter(
			name,
			time.Duration(cfg.BaseLatencyMs)*time.Millisecond,
			cfg.FailureRate,
			cfg.RatePerSec,
		))
	}
	return reg
}

func (a *SimulatedAdapter) Name() string { return a.name }

func (a *SimulatedAdapter) Create(ctx context.Context, req Request) (*Result, error) {
	return a.call(ctx, "create", req)
}

func (a *SimulatedAdapter) Update(ctx context.Context, req Request) (*Result, error) {
	return a.call(ctx, "update", req)
}

func (a *SimulatedAdapter) Delete(ctx context.Context, req Request) (*Result, error) {
	return a.call(ctx, "delete", req)
}

func (a *SimulatedAdapter) call(ctx context.Context, verb string, req Request) (*Result, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "%s: rate limit wait", a.name)
	}

	a.mu.Lock()
	roll := a.randF()
	jitter := a.randF()
	a.mu.Unlock()

	// Latency spreads ±50% around the base.
	latency := time.Duration(float64(a.baseLatency) * (0.5 + jitter))
	start := time.Now()
	if err := a.sleep(ctx, latency); err != nil {
		return nil, eris.Wrapf(err, "%s: %s %s", a.name, verb, req.TargetKind)
	}

	if roll < a.failureRate {
		return nil, resilience.NewTransientError(
			eris.Errorf("%s: simulated %s failure for %s %s (domain %s)",
				a.name, verb, req.TargetKind, req.TargetID, req.Domain), 503)
	}

	return &Result{
		Platform:  a.name,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
