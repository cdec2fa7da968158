// Package syncer delivers knowledge graph changes to the configured external
// platforms. Producers enqueue operations onto a bounded channel; a single
// consumer drains it and fans each operation out to all platforms in
// parallel, waiting for every delivery to settle before moving on.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/config"
	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/platform"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
	"github.com/sightline-ai/visibility-cli/internal/store"
)

// ErrQueueFull is returned by QueueChange when the bounded queue is at
// capacity. Callers decide whether to drop or retry later.
var ErrQueueFull = eris.New("syncer: queue full")

// Engine is the synchronization engine. Construct with NewEngine, call Start
// once, and Stop to drain the consumer.
type Engine struct {
	registry *platform.Registry
	store    store.Store
	breakers *resilience.PlatformBreakers
	retryCfg resilience.RetryConfig
	metrics  *Metrics
	log      *zap.Logger

	queue   chan *model.SyncOperation
	pending atomic.Int64

	mu  sync.RWMutex
	ops map[string]*model.SyncOperation

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option customizes the engine.
type Option func(*Engine)

// WithRetryConfig replaces the delivery retry configuration, for tests that
// need instant backoff.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retryCfg = cfg }
}

// WithBreakers installs per-platform circuit breakers.
func WithBreakers(pb *resilience.PlatformBreakers) Option {
	return func(e *Engine) { e.breakers = pb }
}

// NewEngine creates a sync engine delivering to the registry's platforms.
// The store is used to persist exhausted deliveries to the dead letter
// queue; it may be nil.
func NewEngine(cfg config.SyncConfig, reg *platform.Registry, st store.Store, opts ...Option) *Engine {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	retryCfg := resilience.DeliveryRetryConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoffMs > 0 {
		retryCfg.InitialBackoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	}

	e := &Engine{
		registry: reg,
		store:    st,
		retryCfg: retryCfg,
		metrics:  NewMetrics(),
		log:      zap.L().Named("syncer"),
		queue:    make(chan *model.SyncOperation, queueSize),
		ops:      make(map[string]*model.SyncOperation),
		done:     make(chan struct{}),
	}
	if cfg.BreakerFailureThreshold > 0 {
		e.breakers = resilience.NewPlatformBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			ResetTimeout:     time.Duration(cfg.BreakerResetTimeoutSecs) * time.Second,
		})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the consumer loop. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go e.consume(ctx)
}

// Stop cancels the consumer and waits for it to exit. Queued but undelivered
// operations stay pending.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		<-e.done
	})
}

// Metrics returns the per-domain metrics collector.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// PendingOperations reports queued plus in-flight operations.
func (e *Engine) PendingOperations() int {
	return int(e.pending.Load())
}

// Breakers returns the per-platform circuit breakers, or nil when disabled.
func (e *Engine) Breakers() *resilience.PlatformBreakers { return e.breakers }

// QueueChange enqueues one change for delivery to every configured platform
// and returns the operation id immediately, without waiting for delivery.
// Returns ErrQueueFull when the bounded queue is at capacity.
func (e *Engine) QueueChange(kind model.ChangeKind, targetKind model.TargetKind, targetID, domain string, before, after any) (string, error) {
	op := &model.SyncOperation{
		ID:         uuid.New().String(),
		Kind:       kind,
		TargetKind: targetKind,
		TargetID:   targetID,
		Domain:     domain,
		Before:     before,
		After:      after,
		Platforms:  make(map[string]*model.PlatformSyncStatus),
		CreatedAt:  time.Now().UTC(),
	}
	for _, name := range e.registry.List() {
		op.Platforms[name] = &model.PlatformSyncStatus{State: model.PlatformPending}
	}

	e.mu.Lock()
	e.ops[op.ID] = op
	e.mu.Unlock()

	select {
	case e.queue <- op:
		e.pending.Add(1)
		return op.ID, nil
	default:
		e.mu.Lock()
		delete(e.ops, op.ID)
		e.mu.Unlock()
		return "", eris.Wrapf(ErrQueueFull, "domain %s", domain)
	}
}

// BatchSync maps each graph update to a sync operation and queues them all,
// returning the operation ids in submission order. A full queue stops the
// batch; ids queued so far are still returned.
func (e *Engine) BatchSync(graph *model.KnowledgeGraph, updates []model.GraphUpdate) ([]string, error) {
	if graph == nil {
		return nil, eris.New("syncer: batch sync: nil graph")
	}

	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		kind := model.ChangeUpdate
		if u.Type == model.UpdateTypeNewEntity {
			kind = model.ChangeCreate
		}

		var after any
		switch {
		case u.Entity != nil:
			after = u.Entity
		case u.Relationship != nil:
			after = u.Relationship
		case u.Fields != nil:
			after = u.Fields
		default:
			after = map[string]any{"confidence": u.NewConfidence}
		}

		id, err := e.QueueChange(kind, u.TargetKind, u.TargetID, graph.Domain, nil, after)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Operation returns a snapshot of the operation's current state.
func (e *Engine) Operation(id string) (*model.SyncOperation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	op, ok := e.ops[id]
	if !ok {
		return nil, false
	}
	return copyOperation(op), true
}

func (e *Engine) consume(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-e.queue:
			e.process(ctx, op)
			e.pending.Add(-1)
		}
	}
}

type platformResult struct {
	name      string
	latencyMs int64
	retries   int
	err       error
}

// process fans the operation out to every platform in parallel and waits for
// all deliveries to settle before recording metrics.
func (e *Engine) process(ctx context.Context, op *model.SyncOperation) {
	adapters := e.registry.All()

	e.mu.Lock()
	for _, a := range adapters {
		if ps, ok := op.Platforms[a.Name()]; ok {
			ps.State = model.PlatformInProgress
		}
	}
	e.mu.Unlock()

	results := make(chan platformResult, len(adapters))
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a platform.Adapter) {
			defer wg.Done()
			results <- e.deliver(ctx, a, op)
		}(a)
	}
	wg.Wait()
	close(results)

	now := time.Now().UTC()
	var failed []platformResult
	e.mu.Lock()
	for r := range results {
		ps, ok := op.Platforms[r.name]
		if !ok {
			continue
		}
		ps.RetryCount = r.retries
		if r.err != nil {
			ps.State = model.PlatformFailed
			ps.LastError = r.err.Error()
			failed = append(failed, r)
		} else {
			ps.State = model.PlatformCompleted
			ps.LatencyMs = r.latencyMs
		}
	}
	op.CompletedAt = &now
	snapshot := copyOperation(op)
	e.mu.Unlock()

	e.metrics.Record(snapshot)

	for _, r := range failed {
		e.deadLetter(ctx, snapshot, r)
	}

	e.log.Debug("operation settled",
		zap.String("op_id", op.ID),
		zap.String("domain", op.Domain),
		zap.Bool("succeeded", snapshot.Succeeded()),
		zap.Int("failed_platforms", len(failed)))
}

// deliver runs one platform's delivery with bounded retries inside the call.
// The returned retry count reflects failed attempts only: a delivery that
// fails twice then succeeds reports 2.
func (e *Engine) deliver(ctx context.Context, a platform.Adapter, op *model.SyncOperation) platformResult {
	req := platform.Request{
		Domain:     op.Domain,
		TargetKind: op.TargetKind,
		TargetID:   op.TargetID,
		Payload:    op.After,
	}

	var call func(context.Context, platform.Request) (*platform.Result, error)
	switch op.Kind {
	case model.ChangeCreate:
		call = a.Create
	case model.ChangeDelete:
		call = a.Delete
	default:
		call = a.Update
	}

	cfg := e.retryCfg
	retries := 0
	onRetry := resilience.RetryLogger(a.Name(), string(op.Kind))
	cfg.OnRetry = func(failedAttempts int, err error) {
		retries = failedAttempts
		onRetry(failedAttempts, err)
	}

	attempt := func(ctx context.Context) (*platform.Result, error) {
		return call(ctx, req)
	}

	var res *platform.Result
	var err error
	if e.breakers != nil {
		err = e.breakers.Get(a.Name()).Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			res, innerErr = resilience.DoVal(ctx, cfg, attempt)
			return innerErr
		})
	} else {
		res, err = resilience.DoVal(ctx, cfg, attempt)
	}

	if err != nil {
		// The final failed attempt is not reported via OnRetry; count it here.
		// A circuit-open rejection made no attempt at all.
		if !eris.Is(err, resilience.ErrCircuitOpen) {
			retries++
		}
		return platformResult{name: a.Name(), retries: retries, err: err}
	}
	return platformResult{name: a.Name(), retries: retries, latencyMs: res.LatencyMs}
}

func (e *Engine) deadLetter(ctx context.Context, op *model.SyncOperation, r platformResult) {
	if e.store == nil {
		return
	}
	now := time.Now().UTC()
	entry := resilience.DLQEntry{
		Domain:       op.Domain,
		OperationID:  op.ID,
		Platform:     r.name,
		TargetKind:   string(op.TargetKind),
		Error:        r.err.Error(),
		ErrorType:    resilience.ClassifyError(r.err),
		RetryCount:   r.retries,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := e.store.EnqueueDLQ(ctx, entry); err != nil {
		e.log.Warn("dead letter enqueue failed",
			zap.String("op_id", op.ID),
			zap.String("platform", r.name),
			zap.Error(err))
	}
}

func copyOperation(op *model.SyncOperation) *model.SyncOperation {
	cp := *op
	cp.Platforms = make(map[string]*model.PlatformSyncStatus, len(op.Platforms))
	for name, ps := range op.Platforms {
		s := *ps
		cp.Platforms[name] = &s
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
