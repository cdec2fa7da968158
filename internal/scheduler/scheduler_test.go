package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/visibility-cli/internal/config"
)

func TestParseSchedule(t *testing.T) {
	assert.Equal(t, time.Hour, ParseSchedule("hourly"))
	assert.Equal(t, 24*time.Hour, ParseSchedule("daily"))
	assert.Equal(t, 7*24*time.Hour, ParseSchedule("weekly"))
	assert.Equal(t, 5*time.Minute, ParseSchedule("@every 5m"))
	assert.Equal(t, 90*time.Second, ParseSchedule("@every 1m30s"))

	// Strict: unrecognized expressions yield 0, not a guess.
	assert.Equal(t, time.Duration(0), ParseSchedule("*/5 * * * *"))
	assert.Equal(t, time.Duration(0), ParseSchedule("every 5m"))
	assert.Equal(t, time.Duration(0), ParseSchedule("@every nonsense"))
	assert.Equal(t, time.Duration(0), ParseSchedule("@every -1m"))
	assert.Equal(t, time.Duration(0), ParseSchedule(""))
}

func TestRegister_UnrecognizedScheduleStaysEnabledButNeverDue(t *testing.T) {
	s := New(config.SchedulerConfig{TickMs: 10})
	ran := false
	require.NoError(t, s.Register(Job{
		ID:       "odd",
		Name:     "Odd schedule",
		Schedule: "*/5 * * * *",
		Handler:  func(context.Context) error { ran = true; return nil },
	}))

	st, ok := s.Status("odd")
	require.True(t, ok)
	assert.True(t, st.Enabled)
	assert.Equal(t, time.Duration(0), st.Interval)
	assert.True(t, st.NextRun.IsZero())

	// Dispatch never picks it up.
	s.dispatch(context.Background())
	s.running.Wait()
	assert.False(t, ran)
}

func TestRegister_Validation(t *testing.T) {
	s := New(config.SchedulerConfig{})
	require.Error(t, s.Register(Job{Name: "no id", Handler: func(context.Context) error { return nil }}))
	require.Error(t, s.Register(Job{ID: "no-handler"}))

	require.NoError(t, s.Register(Job{ID: "dup", Schedule: "hourly", Handler: func(context.Context) error { return nil }}))
	require.Error(t, s.Register(Job{ID: "dup", Schedule: "hourly", Handler: func(context.Context) error { return nil }}))
}

func TestDispatch_RunsDueJob(t *testing.T) {
	s := New(config.SchedulerConfig{TickMs: 10})
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	runs := 0
	require.NoError(t, s.Register(Job{
		ID:       "tickjob",
		Schedule: "@every 1m",
		Handler:  func(context.Context) error { runs++; return nil },
	}))

	// Not due yet.
	s.dispatch(context.Background())
	s.running.Wait()
	assert.Equal(t, 0, runs)

	// Advance past the interval.
	now = now.Add(2 * time.Minute)
	s.dispatch(context.Background())
	s.running.Wait()
	assert.Equal(t, 1, runs)

	st, _ := s.Status("tickjob")
	assert.Equal(t, int64(1), st.RunCount)
	assert.Equal(t, int64(0), st.ErrorCount)
	assert.False(t, st.LastRun.IsZero())
	assert.Equal(t, now.Add(time.Minute), st.NextRun)
}

func TestDispatch_OverlappingTriggerDropped(t *testing.T) {
	s := New(config.SchedulerConfig{TickMs: 10})
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s.nowFunc = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	started := make(chan struct{})
	release := make(chan struct{})
	starts := 0
	require.NoError(t, s.Register(Job{
		ID:       "slow",
		Schedule: "@every 1m",
		Handler: func(context.Context) error {
			starts++
			close(started)
			<-release
			return nil
		},
	}))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	s.dispatch(context.Background())
	<-started

	// Second dispatch while the first invocation is still active: dropped.
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	s.dispatch(context.Background())

	st, _ := s.Status("slow")
	assert.True(t, st.Running)
	assert.Equal(t, 1, starts)
	assert.Equal(t, int64(0), st.RunCount) // not incremented until completion

	close(release)
	s.running.Wait()

	st, _ = s.Status("slow")
	assert.False(t, st.Running)
	assert.Equal(t, int64(1), st.RunCount)
}

func TestExecuteJob_HandlerErrorCountedNotFatal(t *testing.T) {
	s := New(config.SchedulerConfig{TickMs: 10})
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	calls := 0
	require.NoError(t, s.Register(Job{
		ID:       "flaky",
		Schedule: "@every 1m",
		Handler: func(context.Context) error {
			calls++
			if calls == 1 {
				return eris.New("boom")
			}
			return nil
		},
	}))

	now = now.Add(2 * time.Minute)
	s.dispatch(context.Background())
	s.running.Wait()

	st, _ := s.Status("flaky")
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.Equal(t, int64(0), st.RunCount)
	assert.True(t, st.LastRun.IsZero())
	// Still scheduled: the next tick fires again.
	assert.Equal(t, now.Add(time.Minute), st.NextRun)

	now = now.Add(2 * time.Minute)
	s.dispatch(context.Background())
	s.running.Wait()

	st, _ = s.Status("flaky")
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.Equal(t, int64(1), st.RunCount)
}

func TestExecuteJob_PanicAbsorbed(t *testing.T) {
	s := New(config.SchedulerConfig{TickMs: 10})
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	require.NoError(t, s.Register(Job{
		ID:       "panics",
		Schedule: "@every 1m",
		Handler:  func(context.Context) error { panic("handler bug") },
	}))

	now = now.Add(2 * time.Minute)
	s.dispatch(context.Background())
	s.running.Wait()

	st, _ := s.Status("panics")
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.False(t, st.Running)
}

func TestTriggerNow_MutualExclusion(t *testing.T) {
	s := New(config.SchedulerConfig{})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register(Job{
		ID:       "manual",
		Schedule: "daily",
		Handler: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	go func() {
		_ = s.TriggerNow(context.Background(), "manual")
	}()
	<-started

	err := s.TriggerNow(context.Background(), "manual")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(release)
	require.Eventually(t, func() bool {
		st, _ := s.Status("manual")
		return !st.Running && st.RunCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEnableDisable(t *testing.T) {
	s := New(config.SchedulerConfig{})
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	runs := 0
	require.NoError(t, s.Register(Job{
		ID:       "toggled",
		Schedule: "@every 1m",
		Handler:  func(context.Context) error { runs++; return nil },
	}))
	require.NoError(t, s.Disable("toggled"))

	now = now.Add(2 * time.Minute)
	s.dispatch(context.Background())
	s.running.Wait()
	assert.Equal(t, 0, runs)

	require.NoError(t, s.Enable("toggled"))
	now = now.Add(2 * time.Minute)
	s.dispatch(context.Background())
	s.running.Wait()
	assert.Equal(t, 1, runs)

	require.Error(t, s.Enable("nope"))
	require.Error(t, s.Disable("nope"))
}

func TestNew_ConfigDisabledJobs(t *testing.T) {
	s := New(config.SchedulerConfig{Disabled: []string{"off-by-default"}})
	require.NoError(t, s.Register(Job{
		ID:       "off-by-default",
		Schedule: "hourly",
		Handler:  func(context.Context) error { return nil },
	}))
	st, _ := s.Status("off-by-default")
	assert.False(t, st.Enabled)
}

func TestStartStop_LoopDispatches(t *testing.T) {
	s := New(config.SchedulerConfig{TickMs: 5})

	var mu sync.Mutex
	runs := 0
	require.NoError(t, s.Register(Job{
		ID:       "fast",
		Schedule: "@every 1ms",
		Handler: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			runs++
			return nil
		},
	}))

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}
