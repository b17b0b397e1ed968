// Package consolidation runs one distill, graduate and purge cycle over the
// memory tiers:
//
//  1. recent working content + existing episodic -> oracle -> episodic.md
//  2. semantic mutable region + episodic -> oracle -> semantic.md (mutable only)
//  3. purge expired working files
//
// The two oracle steps are independent: either may fail while the other
// succeeds, and a failed step leaves its tier byte-identical.
package consolidation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory/retention"
	"github.com/entrhq/mnemo/pkg/memory/store"
	"github.com/entrhq/mnemo/pkg/tokenizer"
	"github.com/entrhq/mnemo/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("consolidation")
	if err != nil {
		debugLog.Warnf("Failed to initialize consolidation logger, using stderr fallback: %v", err)
	}
}

// Summarizer is the oracle contract: text and true, or "" and false.
type Summarizer interface {
	Summarize(ctx context.Context, system, prompt string) (string, bool)
}

// PurgePolicy selects which expired working files a run deletes.
type PurgePolicy string

const (
	// PurgeCovered deletes an expired file only when a successful episodic
	// update read all of it and it has not been written since.
	PurgeCovered PurgePolicy = "covered"
	// PurgeAlways deletes every expired file after each run.
	PurgeAlways PurgePolicy = "always"
)

// ParsePurgePolicy maps a config value to a policy, defaulting to covered.
func ParsePurgePolicy(s string) PurgePolicy {
	if PurgePolicy(strings.ToLower(strings.TrimSpace(s))) == PurgeAlways {
		return PurgeAlways
	}
	return PurgeCovered
}

// DefaultEpisodicTargetWords is the episodic length target.
const DefaultEpisodicTargetWords = 1000

// Config holds the engine settings.
type Config struct {
	RetentionDays       int
	PurgePolicy         PurgePolicy
	EpisodicTargetWords int
}

func (c Config) withDefaults() Config {
	if c.RetentionDays <= 0 {
		c.RetentionDays = retention.DefaultWindowDays
	}
	if c.PurgePolicy == "" {
		c.PurgePolicy = PurgeCovered
	}
	if c.EpisodicTargetWords <= 0 {
		c.EpisodicTargetWords = DefaultEpisodicTargetWords
	}
	return c
}

// StepStatus is the outcome of one tier step.
type StepStatus string

const (
	StepUpdated   StepStatus = "updated"
	StepUnchanged StepStatus = "unchanged"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Result describes one run.
type Result struct {
	RunID           string
	StartedAt       time.Time
	Duration        time.Duration
	EpisodicUpdated bool
	SemanticUpdated bool
	Episodic        StepStatus
	Semantic        StepStatus
	Purged          []string
	// Skipped is set when the trigger was coalesced into an active run.
	Skipped bool
	// EmptyInput is set when the window held no working content.
	EmptyInput bool
}

// Engine executes consolidation runs. At most one run is active at a time;
// a trigger arriving mid-run returns a skipped Result immediately.
type Engine struct {
	store  *store.Store
	oracle Summarizer
	cfg    Config

	running sync.Mutex

	hookMu   sync.RWMutex
	emitters []func(*types.MemoryEvent)
	after    []func(*Result)
}

// NewEngine creates an engine over st using oracle.
func NewEngine(st *store.Store, oracle Summarizer, cfg Config) *Engine {
	return &Engine{
		store:  st,
		oracle: oracle,
		cfg:    cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// OnEvent registers a callback receiving every event. Callbacks run on the
// run's goroutine and must not block.
func (e *Engine) OnEvent(fn func(*types.MemoryEvent)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.emitters = append(e.emitters, fn)
}

// AfterRun registers a callback invoked at the end of every completed run,
// used to refresh read-only mirrors.
func (e *Engine) AfterRun(fn func(*Result)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.after = append(e.after, fn)
}

func (e *Engine) emit(ev *types.MemoryEvent) {
	e.hookMu.RLock()
	defer e.hookMu.RUnlock()
	for _, fn := range e.emitters {
		fn(ev)
	}
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool {
	if e.running.TryLock() {
		e.running.Unlock()
		return false
	}
	return true
}

// Run performs one consolidation run. Oracle failures are reported in the
// Result, not as errors; the error only carries store I/O problems, which
// are never fatal to the run.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if !e.running.TryLock() {
		debugLog.Infof("consolidation already running; trigger skipped")
		e.emit(types.NewRunSkippedEvent())
		return &Result{Skipped: true, Episodic: StepSkipped, Semantic: StepSkipped}, nil
	}
	defer e.running.Unlock()

	began := time.Now()
	res := &Result{
		RunID:     uuid.New().String(),
		StartedAt: e.store.Now(),
		Episodic:  StepSkipped,
		Semantic:  StepSkipped,
	}
	e.emit(types.NewRunStartEvent(res.RunID))
	debugLog.Infof("run %s started (window %d days, purge %s)", res.RunID, e.cfg.RetentionDays, e.cfg.PurgePolicy)

	var errs []error
	state, err := e.store.LoadState()
	if err != nil {
		errs = append(errs, err)
	}
	if err := e.store.EnsureSemanticTemplate(); err != nil {
		errs = append(errs, err)
	}

	working, read, err := e.store.RecentWorking(e.cfg.RetentionDays)
	if err != nil {
		errs = append(errs, err)
		working, read = "", nil
	}

	if strings.TrimSpace(working) == "" {
		res.EmptyInput = true
		debugLog.Infof("run %s: no working content in window", res.RunID)
	} else {
		e.episodicStep(ctx, res, &state, working, read)
		e.semanticStep(ctx, res, &state)
	}

	purged, err := e.purge(&state)
	if err != nil {
		errs = append(errs, err)
	}
	res.Purged = purged
	if len(purged) > 0 {
		debugLog.Infof("run %s: purged %d working files", res.RunID, len(purged))
		e.emit(types.NewPurgeEvent(res.RunID, purged))
	}

	res.Duration = time.Since(began)
	state.LastRunAt = res.StartedAt
	state.LastRunResult = outcome(res)
	state.TotalRuns++
	if err := e.store.SaveState(state); err != nil {
		errs = append(errs, err)
	}

	debugLog.Infof("run %s finished in %s: episodic=%s semantic=%s purged=%d",
		res.RunID, res.Duration.Round(time.Millisecond), res.Episodic, res.Semantic, len(purged))
	e.emit(types.NewRunCompleteEvent(res.RunID, types.RunSummary{
		EpisodicUpdated: res.EpisodicUpdated,
		SemanticUpdated: res.SemanticUpdated,
		PurgedFiles:     len(purged),
		Duration:        res.Duration,
	}))

	e.hookMu.RLock()
	after := append([]func(*Result){}, e.after...)
	e.hookMu.RUnlock()
	for _, fn := range after {
		fn(res)
	}
	return res, errors.Join(errs...)
}

func (e *Engine) episodicStep(ctx context.Context, res *Result, state *store.State, working string, read []store.WorkingFile) {
	fp := fingerprint(working)
	existing, err := e.store.ReadEpisodic()
	if err != nil {
		e.fail(res, state, types.TierEpisodic, err)
		return
	}
	if fp == state.WorkingFingerprint && strings.TrimSpace(existing) != "" {
		res.Episodic = StepUnchanged
		e.emit(types.NewTierUnchangedEvent(res.RunID, types.TierEpisodic, "no new working content"))
		return
	}

	policy := retention.Policy{WindowDays: e.cfg.RetentionDays, Now: e.store.Now}
	prompt := buildEpisodicPrompt(existing, working, policy.Today(), policy.Cutoff(), e.cfg.EpisodicTargetWords)
	debugLog.Debugf("run %s: episodic prompt %d tokens", res.RunID, tokenizer.Count(episodicSystemPrompt)+tokenizer.Count(prompt))

	text, ok := e.oracle.Summarize(ctx, episodicSystemPrompt, prompt)
	if !ok {
		e.fail(res, state, types.TierEpisodic, errors.New("oracle returned no episodic summary"))
		return
	}
	if err := e.store.WriteEpisodic(text); err != nil {
		e.fail(res, state, types.TierEpisodic, err)
		return
	}

	res.Episodic = StepUpdated
	res.EpisodicUpdated = true
	state.WorkingFingerprint = fp
	state.MarkCovered(read)
	state.LastEpisodicSuccess = res.StartedAt
	state.EpisodicFailures = 0
	e.emit(types.NewTierUpdatedEvent(res.RunID, types.TierEpisodic, len(text)))
}

func (e *Engine) semanticStep(ctx context.Context, res *Result, state *store.State) {
	episodic, err := e.store.ReadEpisodic()
	if err != nil {
		e.fail(res, state, types.TierSemantic, err)
		return
	}
	if strings.TrimSpace(episodic) == "" {
		res.Semantic = StepUnchanged
		e.emit(types.NewTierUnchangedEvent(res.RunID, types.TierSemantic, "no episodic summary to graduate"))
		return
	}
	fp := fingerprint(episodic)
	if fp == state.GraduatedFingerprint {
		res.Semantic = StepUnchanged
		e.emit(types.NewTierUnchangedEvent(res.RunID, types.TierSemantic, "episodic summary already graduated"))
		return
	}

	parts, err := e.store.ReadSemanticParts()
	if err != nil {
		e.fail(res, state, types.TierSemantic, err)
		return
	}
	prompt := buildSemanticPrompt(parts.Mutable, episodic)
	debugLog.Debugf("run %s: semantic prompt %d tokens", res.RunID, tokenizer.Count(semanticSystemPrompt)+tokenizer.Count(prompt))

	text, ok := e.oracle.Summarize(ctx, semanticSystemPrompt, prompt)
	if !ok {
		e.fail(res, state, types.TierSemantic, errors.New("oracle returned no semantic update"))
		return
	}
	if err := e.store.WriteSemanticMutable(text); err != nil {
		e.fail(res, state, types.TierSemantic, err)
		return
	}

	res.Semantic = StepUpdated
	res.SemanticUpdated = true
	state.GraduatedFingerprint = fp
	state.LastSemanticSuccess = res.StartedAt
	state.SemanticFailures = 0
	e.emit(types.NewTierUpdatedEvent(res.RunID, types.TierSemantic, len(text)))
}

func (e *Engine) fail(res *Result, state *store.State, tier types.Tier, err error) {
	debugLog.Warnf("run %s: %s step did not advance: %v", res.RunID, tier, err)
	switch tier {
	case types.TierEpisodic:
		res.Episodic = StepFailed
		state.EpisodicFailures++
	case types.TierSemantic:
		res.Semantic = StepFailed
		state.SemanticFailures++
	}
	e.emit(types.NewTierFailedEvent(res.RunID, tier, err))
}

func (e *Engine) purge(state *store.State) ([]string, error) {
	var purged []string
	var err error
	if e.cfg.PurgePolicy == PurgeAlways {
		purged, err = e.store.PurgeWorkingOlderThan(e.cfg.RetentionDays)
	} else {
		purged, err = e.store.PurgeWorkingCovered(e.cfg.RetentionDays, *state)
	}
	if remaining, listErr := e.store.ListWorking(); listErr == nil {
		state.ForgetMissing(remaining)
	}
	return purged, err
}

func outcome(res *Result) store.RunOutcome {
	switch {
	case res.EmptyInput:
		return store.OutcomeEmpty
	case res.Episodic == StepFailed && res.Semantic == StepFailed:
		return store.OutcomeFailed
	case res.Episodic == StepFailed || res.Semantic == StepFailed:
		return store.OutcomePartial
	default:
		return store.OutcomeFull
	}
}

func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// String renders a one-line description of the result.
func (r *Result) String() string {
	if r.Skipped {
		return "skipped: a run was already in progress"
	}
	if r.EmptyInput {
		return fmt.Sprintf("no working content; purged %d files", len(r.Purged))
	}
	return fmt.Sprintf("episodic %s, semantic %s, purged %d files in %s",
		r.Episodic, r.Semantic, len(r.Purged), r.Duration.Round(time.Millisecond))
}
