// Package scheduler provides the background triggers for sync runs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ahmed11551/namazpro24/internal/logging"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/connectivity"
)

// Runner performs one guarded sync run.
type Runner interface {
	Run(ctx context.Context) syncpkg.RunResult
}

// PendingCounter reports how many events are waiting.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Monitor is the connectivity state the scheduler reacts to.
type Monitor interface {
	IsOnline() bool
	OnChange(fn connectivity.Listener) (cancel func())
}

// Trigger names what caused a run.
type Trigger string

const (
	TriggerReconnect Trigger = "reconnect"
	TriggerTimer     Trigger = "timer"
	TriggerPending   Trigger = "pending"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	SyncInterval time.Duration // How often to check for pending events while online (default: 30 seconds)

	// OnResult, if set, receives the result of every run the scheduler starts.
	OnResult func(trigger Trigger, result syncpkg.RunResult)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval: 30 * time.Second,
	}
}

// Scheduler starts sync runs on reconnect, on a timer while events are
// pending, and when told the pending count changed. Every run goes through
// the engine's guard, so overlapping triggers collapse into one run.
type Scheduler struct {
	runner  Runner
	pending PendingCounter
	monitor Monitor

	syncInterval time.Duration
	onResult     func(Trigger, syncpkg.RunResult)

	mu         sync.Mutex
	isRunning  bool
	ctx        context.Context
	cancel     context.CancelFunc
	stopCh     chan struct{}
	stopListen func()
	wg         sync.WaitGroup

	notifyCh   chan struct{}
	intervalCh chan struct{}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(runner Runner, pending PendingCounter, monitor Monitor, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	interval := config.SyncInterval
	if interval <= 0 {
		interval = DefaultSchedulerConfig().SyncInterval
	}

	return &Scheduler{
		runner:       runner,
		pending:      pending,
		monitor:      monitor,
		syncInterval: interval,
		onResult:     config.OnResult,
		notifyCh:     make(chan struct{}, 1),
		intervalCh:   make(chan struct{}, 1),
	}
}

// Start starts the background sync scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.ctx, s.stopCh)
	s.mu.Unlock()

	stopListen := s.monitor.OnChange(func(online bool) {
		if online {
			s.trigger(TriggerReconnect)
		}
	})

	s.mu.Lock()
	s.stopListen = stopListen
	s.mu.Unlock()

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"component":        "scheduler",
		"interval_seconds": s.syncInterval.Seconds(),
	})
}

// Stop stops the scheduler and waits for any run it started to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopListen := s.stopListen
	s.stopListen = nil
	close(s.stopCh)
	s.cancel()
	s.mu.Unlock()

	if stopListen != nil {
		stopListen()
	}
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", map[string]interface{}{"component": "scheduler"})
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Notify tells the scheduler the pending count may have changed. A run is
// started if the monitor is online and events are pending. Never blocks.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// SetInterval changes the timer period of a running or future loop.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.syncInterval = d
	s.mu.Unlock()

	// the loop reads the period back, so one pending signal covers any
	// number of calls
	select {
	case s.intervalCh <- struct{}{}:
	default:
	}
}

// Interval returns the current timer period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncInterval
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-s.intervalCh:
			d := s.Interval()
			ticker.Reset(d)
			logging.Debug("Sync interval changed", map[string]interface{}{
				"component":        "scheduler",
				"interval_seconds": d.Seconds(),
			})
		case <-ticker.C:
			s.triggerIfPending(ctx, TriggerTimer)
		case <-s.notifyCh:
			s.triggerIfPending(ctx, TriggerPending)
		}
	}
}

func (s *Scheduler) triggerIfPending(ctx context.Context, trigger Trigger) {
	if !s.monitor.IsOnline() {
		return
	}
	n, err := s.pending.PendingCount(ctx)
	if err != nil {
		logging.Warn("Cannot read pending count, skipping trigger", map[string]interface{}{
			"component": "scheduler",
			"trigger":   string(trigger),
			"error":     err.Error(),
		})
		return
	}
	if n == 0 {
		return
	}
	s.trigger(trigger)
}

// trigger starts a run in its own goroutine so a trigger arriving mid-run
// reaches the engine's guard and is dropped there.
func (s *Scheduler) trigger(trigger Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return false
	}
	s.wg.Add(1)
	go s.runSync(s.ctx, trigger)
	return true
}

func (s *Scheduler) runSync(ctx context.Context, trigger Trigger) {
	defer s.wg.Done()

	result := s.runner.Run(ctx)
	if result.Skipped {
		logging.Debug("Sync trigger dropped", map[string]interface{}{
			"component": "scheduler",
			"trigger":   string(trigger),
			"reason":    string(result.SkipReason),
		})
	}
	if s.onResult != nil {
		s.onResult(trigger, result)
	}
}
