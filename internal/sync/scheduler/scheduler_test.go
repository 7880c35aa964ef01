// Package scheduler tests for background sync scheduling functionality.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/connectivity"
)

// =====================================================
// Test Helpers
// =====================================================

// fakeRunner counts runs and optionally blocks inside them.
type fakeRunner struct {
	runs    atomic.Int32
	running atomic.Bool
	block   chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context) syncpkg.RunResult {
	if !r.running.CompareAndSwap(false, true) {
		return syncpkg.RunResult{Skipped: true, SkipReason: syncpkg.SkipAlreadyRunning}
	}
	defer r.running.Store(false)
	r.runs.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return syncpkg.RunResult{Completed: true}
}

type fakePending struct {
	n   atomic.Int32
	err error
}

func (p *fakePending) PendingCount(ctx context.Context) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return int(p.n.Load()), nil
}

func newTestScheduler(t *testing.T, online bool, interval time.Duration) (*Scheduler, *fakeRunner, *fakePending, *connectivity.Monitor) {
	t.Helper()
	r := &fakeRunner{}
	p := &fakePending{}
	m := connectivity.NewMonitor(online)
	s := NewScheduler(r, p, m, &SchedulerConfig{SyncInterval: interval})
	t.Cleanup(s.Stop)
	return s, r, p, m
}

// =====================================================
// Construction
// =====================================================

func TestDefaultSchedulerConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultSchedulerConfig().SyncInterval)
}

func TestNewScheduler_defaults(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, &fakePending{}, connectivity.NewMonitor(true), nil)
	assert.Equal(t, 30*time.Second, s.Interval())

	s = NewScheduler(&fakeRunner{}, &fakePending{}, connectivity.NewMonitor(true), &SchedulerConfig{SyncInterval: -1})
	assert.Equal(t, 30*time.Second, s.Interval())
}

// =====================================================
// Lifecycle
// =====================================================

func TestStartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, true, time.Hour)

	assert.False(t, s.IsRunning())
	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestStop_waitsForRun(t *testing.T) {
	s, r, _, m := newTestScheduler(t, false, time.Hour)
	r.block = make(chan struct{})
	s.Start(context.Background())

	m.Set(true)
	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Stop cancels the run context, which releases the blocked run.
	s.Stop()
	assert.False(t, r.running.Load())
}

func TestTriggersIgnoredAfterStop(t *testing.T) {
	s, r, p, m := newTestScheduler(t, false, time.Hour)
	p.n.Store(3)
	s.Start(context.Background())
	s.Stop()

	m.Set(true)
	s.Notify()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, r.runs.Load())
}

// =====================================================
// Triggers
// =====================================================

func TestReconnectTriggersRun(t *testing.T) {
	s, r, _, m := newTestScheduler(t, false, time.Hour)
	s.Start(context.Background())

	m.Set(true)
	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	m.Set(false)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, r.runs.Load(), "going offline does not trigger")
}

func TestTimerRunsOnlyWhenPending(t *testing.T) {
	s, r, p, _ := newTestScheduler(t, true, 10*time.Millisecond)
	s.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, r.runs.Load(), "nothing pending")

	p.n.Store(2)
	require.Eventually(t, func() bool { return r.runs.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerSkipsWhileOffline(t *testing.T) {
	s, r, p, _ := newTestScheduler(t, false, 10*time.Millisecond)
	p.n.Store(2)
	s.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, r.runs.Load())
}

func TestNotify(t *testing.T) {
	s, r, p, _ := newTestScheduler(t, true, time.Hour)
	s.Start(context.Background())

	s.Notify()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, r.runs.Load(), "nothing pending")

	p.n.Store(1)
	s.Notify()
	require.Eventually(t, func() bool { return r.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNotify_neverBlocks(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, true, time.Hour)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a running loop")
	}
}

func TestPendingCountError(t *testing.T) {
	s, r, p, _ := newTestScheduler(t, true, 10*time.Millisecond)
	p.err = errors.New("store closed")
	s.Start(context.Background())

	s.Notify()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, r.runs.Load())
}

// Two triggers in the same instant produce one run.
func TestOverlappingTriggersCollapse(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	p := &fakePending{}
	p.n.Store(1)
	m := connectivity.NewMonitor(false)

	var (
		mu      sync.Mutex
		skipped int
	)
	s := NewScheduler(r, p, m, &SchedulerConfig{
		SyncInterval: time.Hour,
		OnResult: func(trigger Trigger, res syncpkg.RunResult) {
			if res.Skipped {
				mu.Lock()
				skipped++
				mu.Unlock()
			}
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	m.Set(true)
	require.Eventually(t, func() bool { return r.running.Load() }, time.Second, 5*time.Millisecond)
	s.Notify()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return skipped == 1
	}, time.Second, 5*time.Millisecond)

	close(r.block)
	assert.EqualValues(t, 1, r.runs.Load())
}

func TestSetInterval(t *testing.T) {
	s, r, p, _ := newTestScheduler(t, true, time.Hour)
	p.n.Store(1)
	s.Start(context.Background())

	s.SetInterval(10 * time.Millisecond)
	s.SetInterval(0)
	assert.Equal(t, 10*time.Millisecond, s.Interval())

	require.Eventually(t, func() bool { return r.runs.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestSetInterval_concurrentBeforeStart(t *testing.T) {
	s, r, p, _ := newTestScheduler(t, true, time.Hour)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.SetInterval(time.Duration(n) * time.Hour)
		}(i)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetInterval blocked without a running loop")
	}

	// the last value set wins once the loop starts
	s.SetInterval(10 * time.Millisecond)
	p.n.Store(1)
	s.Start(context.Background())
	require.Eventually(t, func() bool { return r.runs.Load() > 0 }, time.Second, 5*time.Millisecond)
}
