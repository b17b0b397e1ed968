// Package memory is the composition root of the tiered memory system. A
// Service owns one memory directory: the capture writer, the consolidation
// engine, its scheduler and the cached mirror read by display surfaces.
//
// Hosts construct a Service explicitly and pass it to whatever needs it;
// there is no process-wide instance, so tests can run against isolated
// directories in parallel.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory/capture"
	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/memory/mirror"
	"github.com/entrhq/mnemo/pkg/memory/scheduler"
	"github.com/entrhq/mnemo/pkg/memory/store"
	"github.com/entrhq/mnemo/pkg/metrics"
	"github.com/entrhq/mnemo/pkg/oracle"
	"github.com/entrhq/mnemo/pkg/types"
)

// DefaultEventBuffer is the capacity of the Events channel.
const DefaultEventBuffer = 64

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("memory")
	if err != nil {
		debugLog.Warnf("Failed to initialize memory logger, using stderr fallback: %v", err)
	}
}

// Options configures a Service.
type Options struct {
	// Root is the memory directory. Required.
	Root string

	CaptureEnabled      bool
	DistillationEnabled bool
	// TimesPerDay is clamped to [1, 12].
	TimesPerDay int

	AssistantBudget int
	StrippedTags    []string

	Engine consolidation.Config
	// Oracle defaults to a client that always fails: capture still works
	// and consolidation records failed steps until one is configured.
	Oracle consolidation.Summarizer

	// Metrics may be nil.
	Metrics *metrics.Manager

	// Clock and TickerFactory replace time sources in tests.
	Clock         func() time.Time
	TickerFactory scheduler.TickerFactory

	EventBuffer int
}

// Service wires capture, consolidation, scheduling and the mirror cache
// over one memory directory.
type Service struct {
	mu sync.RWMutex

	opts    Options
	store   *store.Store
	writer  *capture.Writer
	engine  *consolidation.Engine
	cache   *mirror.Cache
	sched   *scheduler.Scheduler
	metrics *metrics.Manager

	// roots keeps the components of every directory this Service has
	// attached, keyed by absolute root, so a directory keeps one engine and
	// one run lock across SetRoot switches.
	roots map[string]*rooted

	distillation bool
	lastResult   *consolidation.Result

	events  chan *types.MemoryEvent
	dropped int
}

// New builds a stopped Service. Call Start to begin scheduled consolidation.
func New(opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TimesPerDay == 0 {
		opts.TimesPerDay = scheduler.DefaultTimesPerDay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Oracle == nil {
		opts.Oracle = oracle.Unavailable(oracle.ErrNoCredentials)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NoOpManager()
	}

	s := &Service{
		opts:         opts,
		metrics:      m,
		distillation: opts.DistillationEnabled,
		events:       make(chan *types.MemoryEvent, opts.EventBuffer),
		roots:        make(map[string]*rooted),
	}

	st, err := store.New(opts.Root, store.WithClock(opts.Clock))
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSemanticTemplate(); err != nil {
		debugLog.Warnf("semantic template not created: %v", err)
	}
	writerOpts := []capture.Option{
		capture.WithClock(opts.Clock),
		capture.WithAssistantBudget(opts.AssistantBudget),
		capture.WithObserver(s.onCapture),
	}
	if len(opts.StrippedTags) > 0 {
		writerOpts = append(writerOpts, capture.WithStrippedTags(opts.StrippedTags...))
	}
	s.writer = capture.NewWriter(st.WorkingDir(), writerOpts...)
	s.writer.SetEnabled(opts.CaptureEnabled)
	s.attach(st)

	schedOpts := []scheduler.Option{}
	if opts.TickerFactory != nil {
		schedOpts = append(schedOpts, scheduler.WithTickerFactory(opts.TickerFactory))
	}
	s.sched = scheduler.New(s.scheduledRun, schedOpts...)
	s.sched.UpdateFrequency(opts.TimesPerDay)

	return s, nil
}

type rooted struct {
	store  *store.Store
	engine *consolidation.Engine
	cache  *mirror.Cache
}

// attach makes st's directory current, reusing the components built the
// first time that directory was attached. Callers hold mu or are
// constructing s.
func (s *Service) attach(st *store.Store) {
	r, ok := s.roots[st.Root()]
	if !ok {
		engine := consolidation.NewEngine(st, s.opts.Oracle, s.opts.Engine)
		engine.OnEvent(s.onEvent)
		cache := mirror.NewCache(st)
		engine.AfterRun(func(res *consolidation.Result) { s.afterRun(cache, res) })
		r = &rooted{store: st, engine: engine, cache: cache}
		s.roots[st.Root()] = r
	}
	if err := r.cache.Refresh(); err != nil {
		debugLog.Warnf("mirror refresh for %s incomplete: %v", st.Root(), err)
	}
	s.store = r.store
	s.engine = r.engine
	s.cache = r.cache
	working := r.cache.Snapshot().Working
	s.metrics.SetWorkingSize(working.Files, working.Bytes)
}

// Root returns the current memory directory.
func (s *Service) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Root()
}

// Store returns the current tiered store.
func (s *Service) Store() *store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Cache returns the current mirror cache.
func (s *Service) Cache() *mirror.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// Snapshot returns the cached view of every tier.
func (s *Service) Snapshot() mirror.Snapshot {
	return s.Cache().Snapshot()
}

// Events delivers engine events. Events are dropped when nobody drains the
// channel fast enough.
func (s *Service) Events() <-chan *types.MemoryEvent {
	return s.events
}

// StartSession begins or continues a capture session.
func (s *Service) StartSession(id string) {
	s.writer.StartSession(id)
}

// Append captures one turn. It never fails; see capture.Writer.Append.
func (s *Service) Append(turn types.Turn) {
	s.writer.Append(turn)
}

// CloseSession ends the current capture session.
func (s *Service) CloseSession() {
	s.writer.Close()
}

// SessionID returns the current capture session id, or "".
func (s *Service) SessionID() string {
	return s.writer.SessionID()
}

// SetCaptureEnabled gates capture.
func (s *Service) SetCaptureEnabled(enabled bool) {
	s.writer.SetEnabled(enabled)
}

// CaptureEnabled reports whether turns are being captured.
func (s *Service) CaptureEnabled() bool {
	return s.writer.Enabled()
}

// Start begins scheduled consolidation when distillation is enabled.
func (s *Service) Start() {
	s.mu.RLock()
	enabled := s.distillation
	s.mu.RUnlock()
	if !enabled {
		debugLog.Infof("distillation disabled; scheduler not started")
		return
	}
	s.sched.Start(s.sched.TimesPerDay())
}

// Stop cancels future scheduled runs. A run in progress completes.
func (s *Service) Stop() {
	s.sched.Stop()
}

// SetDistillationEnabled starts or stops the scheduler.
func (s *Service) SetDistillationEnabled(enabled bool) {
	s.mu.Lock()
	s.distillation = enabled
	s.mu.Unlock()
	if enabled {
		s.sched.Start(s.sched.TimesPerDay())
		return
	}
	s.sched.Stop()
}

// DistillationEnabled reports whether scheduled consolidation is on.
func (s *Service) DistillationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distillation
}

// UpdateFrequency changes the number of runs per day, replacing the
// current timer.
func (s *Service) UpdateFrequency(timesPerDay int) {
	s.sched.UpdateFrequency(timesPerDay)
}

// Scheduler exposes the scheduler for status displays.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.sched
}

// Running reports whether a consolidation run is executing.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Running()
}

// RunNow performs a consolidation run on the caller's goroutine. A call made
// while a run is active returns a skipped Result immediately.
func (s *Service) RunNow(ctx context.Context) (*consolidation.Result, error) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	return engine.Run(ctx)
}

// LastResult returns the most recent completed run, or nil.
func (s *Service) LastResult() *consolidation.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// SetRoot moves the service to another memory directory. The periodic
// timer is cancelled before the new directory is attached and reinstalled
// afterwards; the capture session continues under the same id. A run still
// executing in a directory left earlier keeps that directory's run lock, so
// switching back to it cannot start a second concurrent run there.
func (s *Service) SetRoot(root string) error {
	st, err := store.New(root, store.WithClock(s.opts.Clock))
	if err != nil {
		return fmt.Errorf("memory: switch root: %w", err)
	}
	if err := st.EnsureSemanticTemplate(); err != nil {
		debugLog.Warnf("semantic template not created: %v", err)
	}

	wasRunning := s.sched.Running()
	s.sched.Stop()

	s.mu.Lock()
	s.opts.Root = st.Root()
	s.lastResult = nil
	s.attach(st)
	s.mu.Unlock()

	session := s.writer.SessionID()
	s.writer.SetDir(st.WorkingDir())
	if session != "" {
		s.writer.StartSession(session)
	}

	if wasRunning {
		s.sched.Start(s.sched.TimesPerDay())
	}
	debugLog.Infof("memory root switched to %s", st.Root())
	return nil
}

// NewWatcher returns a watcher that refreshes the current cache when the
// tier files are edited outside the process.
func (s *Service) NewWatcher(opts ...mirror.WatcherOption) (*mirror.Watcher, error) {
	return mirror.NewWatcher(s.Cache(), opts...)
}

// Close stops scheduling, waits for the timer loop to exit and ends the
// capture session.
func (s *Service) Close() {
	s.sched.Stop()
	s.sched.Wait()
	s.writer.Close()
}

func (s *Service) scheduledRun(ctx context.Context) {
	res, err := s.RunNow(ctx)
	if err != nil {
		debugLog.Warnf("scheduled consolidation reported store errors: %v", err)
	}
	if res != nil && !res.Skipped {
		debugLog.Infof("scheduled consolidation: %s", res)
	}
}

func (s *Service) onEvent(ev *types.MemoryEvent) {
	s.metrics.ObserveEvent(ev)
	select {
	case s.events <- ev:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		debugLog.Debugf("event channel full; dropped %s (%d total)", ev.Type, dropped)
	}
}

func (s *Service) afterRun(cache *mirror.Cache, res *consolidation.Result) {
	if err := cache.Refresh(); err != nil {
		debugLog.Warnf("mirror refresh after run %s incomplete: %v", res.RunID, err)
	}
	working := cache.Snapshot().Working
	s.metrics.SetWorkingSize(working.Files, working.Bytes)

	s.mu.Lock()
	if s.cache == cache {
		s.lastResult = res
	}
	s.mu.Unlock()
}

func (s *Service) onCapture(outcome capture.Outcome, n int) {
	s.metrics.ObserveCapture(string(outcome), n)
	if outcome != capture.OutcomeWritten {
		return
	}
	cache := s.Cache()
	if err := cache.RefreshStats(); err != nil {
		return
	}
	working := cache.Snapshot().Working
	s.metrics.SetWorkingSize(working.Files, working.Bytes)
}
