// Package scheduler triggers consolidation runs N times per day and on
// demand. It owns at most one periodic task at a time: changing the
// frequency stops the current task before the next one is installed.
//
// Run exclusivity is the run function's concern; the scheduler only
// guarantees that scheduled and manual triggers call the same function.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/entrhq/mnemo/pkg/logging"
)

const (
	MinTimesPerDay     = 1
	MaxTimesPerDay     = 12
	DefaultTimesPerDay = 4
)

// AllowedFrequencies are the values offered to operators.
var AllowedFrequencies = []int{1, 2, 3, 4, 6, 12}

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("scheduler")
	if err != nil {
		debugLog.Warnf("Failed to initialize scheduler logger, using stderr fallback: %v", err)
	}
}

// RunFunc performs one consolidation run.
type RunFunc func(ctx context.Context)

// Clamp limits timesPerDay to [MinTimesPerDay, MaxTimesPerDay].
func Clamp(timesPerDay int) int {
	if timesPerDay < MinTimesPerDay {
		return MinTimesPerDay
	}
	if timesPerDay > MaxTimesPerDay {
		return MaxTimesPerDay
	}
	return timesPerDay
}

// IntervalFor returns 86400 / clamp(timesPerDay) seconds.
func IntervalFor(timesPerDay int) time.Duration {
	return time.Duration(86400/Clamp(timesPerDay)) * time.Second
}

// Scheduler drives a RunFunc periodically.
type Scheduler struct {
	mu          sync.Mutex
	run         RunFunc
	newTicker   TickerFactory
	ctx         context.Context
	timesPerDay int
	task        *periodicTask
	wg          sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickerFactory replaces the ticker implementation.
func WithTickerFactory(f TickerFactory) Option {
	return func(s *Scheduler) { s.newTicker = f }
}

// WithContext sets the context passed to scheduled runs.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// New returns a stopped scheduler for run.
func New(run RunFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		run:         run,
		newTicker:   NewRealTicker,
		ctx:         context.Background(),
		timesPerDay: DefaultTimesPerDay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins periodic runs at timesPerDay (clamped). An existing task is
// stopped first.
func (s *Scheduler) Start(timesPerDay int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timesPerDay = Clamp(timesPerDay)
	s.installLocked()
}

// Stop cancels future scheduled runs. A run already executing completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// UpdateFrequency changes the rate. A running schedule is replaced; a
// stopped one only records the new value.
func (s *Scheduler) UpdateFrequency(timesPerDay int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timesPerDay = Clamp(timesPerDay)
	if s.task != nil {
		s.installLocked()
	}
}

// RunNow performs a run on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.run(ctx)
}

// Running reports whether a periodic task is installed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

// TimesPerDay returns the clamped frequency.
func (s *Scheduler) TimesPerDay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timesPerDay
}

// Interval returns the period between scheduled runs.
func (s *Scheduler) Interval() time.Duration {
	return IntervalFor(s.TimesPerDay())
}

// Wait blocks until every task loop has exited. Call after Stop.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) installLocked() {
	s.stopLocked()
	interval := IntervalFor(s.timesPerDay)
	t := &periodicTask{ticker: s.newTicker(interval), done: make(chan struct{})}
	s.task = t
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t.loop(s.ctx, s.run)
	}()
	debugLog.Infof("consolidation scheduled %d times per day (every %s)", s.timesPerDay, interval)
}

func (s *Scheduler) stopLocked() {
	if s.task == nil {
		return
	}
	s.task.stop()
	s.task = nil
	debugLog.Infof("consolidation schedule stopped")
}

// periodicTask is one installed schedule.
type periodicTask struct {
	ticker   Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func (t *periodicTask) stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.ticker.Stop()
	})
}

func (t *periodicTask) loop(ctx context.Context, run RunFunc) {
	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case <-t.ticker.C():
			select {
			case <-t.done:
				return
			default:
			}
			debugLog.Debugf("scheduled consolidation tick")
			run(ctx)
		}
	}
}
