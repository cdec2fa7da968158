// Package scheduler runs recurring jobs on a central tick-and-dispatch loop.
// There are no per-job timers: one ticker scans the registered jobs and
// dispatches any that are enabled and due, so enable/disable take effect on
// the next tick without timer bookkeeping.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/config"
)

// JobHandler is the work a job performs. Errors and panics are absorbed at
// the scheduler boundary: logged and counted, never fatal to future ticks.
type JobHandler func(ctx context.Context) error

// Job is a recurring unit of work registered with the scheduler.
type Job struct {
	ID       string
	Name     string
	Schedule string
	Handler  JobHandler
}

// JobStatus is a snapshot of one job's bookkeeping.
type JobStatus struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Schedule      string        `json:"schedule"`
	Interval      time.Duration `json:"interval_ms"`
	Enabled       bool          `json:"enabled"`
	Running       bool          `json:"running"`
	RunCount      int64         `json:"run_count"`
	ErrorCount    int64         `json:"error_count"`
	LastRun       time.Time     `json:"last_run,omitzero"`
	NextRun       time.Time     `json:"next_run,omitzero"`
	AvgDurationMs float64       `json:"avg_duration_ms"`
}

type jobState struct {
	job      Job
	interval time.Duration
	enabled  bool
	running  bool

	runCount      int64
	errorCount    int64
	lastRun       time.Time
	nextRun       time.Time
	avgDurationMs float64
}

// Scheduler dispatches registered jobs from a single loop.
type Scheduler struct {
	mu    sync.Mutex
	jobs  map[string]*jobState
	order []string

	tick     time.Duration
	disabled map[string]bool
	log      *zap.Logger

	// nowFunc allows test injection of time.
	nowFunc func() time.Time

	running  sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a scheduler. Jobs named in cfg.Disabled start disabled.
func New(cfg config.SchedulerConfig) *Scheduler {
	tick := time.Duration(cfg.TickMs) * time.Millisecond
	if tick <= 0 {
		tick = time.Second
	}
	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, id := range cfg.Disabled {
		disabled[id] = true
	}
	return &Scheduler{
		jobs:     make(map[string]*jobState),
		tick:     tick,
		disabled: disabled,
		log:      zap.L().Named("scheduler"),
		nowFunc:  time.Now,
		done:     make(chan struct{}),
	}
}

// ParseSchedule converts a schedule expression to a dispatch interval. It is
// strict: it recognizes "@every <duration>" (Go duration syntax), "hourly",
// "daily", and "weekly". Anything else returns 0, which keeps the job
// registered and enabled but never due.
func ParseSchedule(s string) time.Duration {
	switch strings.TrimSpace(s) {
	case "hourly":
		return time.Hour
	case "daily":
		return 24 * time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(s), "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return 0
		}
		return d
	}
	return 0
}

// Register adds a job. The first dispatch happens one interval after Start.
func (s *Scheduler) Register(job Job) error {
	if job.ID == "" {
		return eris.New("scheduler: job id required")
	}
	if job.Handler == nil {
		return eris.Errorf("scheduler: job %s has no handler", job.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return eris.Errorf("scheduler: job %s already registered", job.ID)
	}

	interval := ParseSchedule(job.Schedule)
	st := &jobState{
		job:      job,
		interval: interval,
		enabled:  !s.disabled[job.ID],
	}
	if interval > 0 {
		st.nextRun = s.nowFunc().Add(interval)
	}
	s.jobs[job.ID] = st
	s.order = append(s.order, job.ID)

	if interval == 0 {
		s.log.Warn("job has unrecognized schedule, will never dispatch",
			zap.String("job_id", job.ID),
			zap.String("schedule", job.Schedule))
	}
	return nil
}

// Start launches the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop halts dispatching and waits for in-flight job runs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		s.running.Wait()
	})
}

// Enable marks a job dispatchable again, effective on the next tick.
func (s *Scheduler) Enable(id string) error {
	return s.setEnabled(id, true)
}

// Disable stops future dispatches. An in-flight run is not interrupted.
func (s *Scheduler) Disable(id string) error {
	return s.setEnabled(id, false)
}

func (s *Scheduler) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return eris.Errorf("scheduler: job not found: %s", id)
	}
	st.enabled = enabled
	if enabled && st.interval > 0 {
		st.nextRun = s.nowFunc().Add(st.interval)
	}
	return nil
}

// TriggerNow runs the job immediately and synchronously, outside its
// schedule. A job whose previous invocation is still active is not run
// again: the trigger is dropped with an error.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) error {
	s.mu.Lock()
	st, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return eris.Errorf("scheduler: job not found: %s", id)
	}
	if st.running {
		s.mu.Unlock()
		return eris.Errorf("scheduler: job %s is already running", id)
	}
	st.running = true
	s.mu.Unlock()

	s.executeJob(ctx, st)
	return nil
}

// Status returns the snapshot for one job.
func (s *Scheduler) Status(id string) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return snapshot(st), true
}

// List returns snapshots for all jobs in registration order.
func (s *Scheduler) List() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.jobs[id]))
	}
	return out
}

func snapshot(st *jobState) JobStatus {
	return JobStatus{
		ID:            st.job.ID,
		Name:          st.job.Name,
		Schedule:      st.job.Schedule,
		Interval:      st.interval,
		Enabled:       st.enabled,
		Running:       st.running,
		RunCount:      st.runCount,
		ErrorCount:    st.errorCount,
		LastRun:       st.lastRun,
		NextRun:       st.nextRun,
		AvgDurationMs: st.avgDurationMs,
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch scans all jobs and launches the due ones. A job still running
// from a previous dispatch is skipped entirely; the overlapping trigger is
// dropped, not queued.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.nowFunc()

	s.mu.Lock()
	var due []*jobState
	for _, id := range s.order {
		st := s.jobs[id]
		if !st.enabled || st.interval <= 0 || st.running {
			continue
		}
		if now.Before(st.nextRun) {
			continue
		}
		st.running = true
		due = append(due, st)
	}
	s.mu.Unlock()

	for _, st := range due {
		s.running.Add(1)
		go func(st *jobState) {
			defer s.running.Done()
			s.executeJob(ctx, st)
		}(st)
	}
}

// executeJob runs the handler and updates bookkeeping. The caller must have
// set st.running under lock. Success advances run count, last/next run, and
// the duration moving average; failure only increments the error count. The
// job stays scheduled either way.
func (s *Scheduler) executeJob(ctx context.Context, st *jobState) {
	start := s.nowFunc()
	err := s.runHandler(ctx, st.job)
	elapsed := s.nowFunc().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	st.running = false
	if st.interval > 0 {
		st.nextRun = s.nowFunc().Add(st.interval)
	}

	if err != nil {
		st.errorCount++
		s.log.Error("job failed",
			zap.String("job_id", st.job.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}

	st.runCount++
	st.lastRun = start
	st.avgDurationMs += (float64(elapsed.Milliseconds()) - st.avgDurationMs) / float64(st.runCount)
	s.log.Info("job completed",
		zap.String("job_id", st.job.ID),
		zap.Duration("elapsed", elapsed),
		zap.Int64("run_count", st.runCount))
}

// runHandler converts panics into errors so one bad cycle cannot stop the
// loop.
func (s *Scheduler) runHandler(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scheduler: job %s panicked: %v", job.ID, r)
		}
	}()
	return job.Handler(ctx)
}
