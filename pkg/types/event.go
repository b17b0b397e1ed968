package types

import "time"

// MemoryEventType defines the type of event emitted by the consolidation engine.
type MemoryEventType string

const (
	EventTypeRunStart      MemoryEventType = "run_start"      // EventTypeRunStart indicates a consolidation run has started.
	EventTypeRunSkipped    MemoryEventType = "run_skipped"    // EventTypeRunSkipped indicates a trigger was coalesced because a run was already active.
	EventTypeTierUpdated   MemoryEventType = "tier_updated"   // EventTypeTierUpdated indicates a tier document was rewritten.
	EventTypeTierUnchanged MemoryEventType = "tier_unchanged" // EventTypeTierUnchanged indicates a tier step had nothing new to consolidate.
	EventTypeTierFailed    MemoryEventType = "tier_failed"    // EventTypeTierFailed indicates a tier step did not advance this cycle.
	EventTypePurge         MemoryEventType = "purge"          // EventTypePurge indicates expired working files were deleted.
	EventTypeRunComplete   MemoryEventType = "run_complete"   // EventTypeRunComplete indicates a consolidation run has finished.
)

// Tier names a memory tier.
type Tier string

const (
	TierWorking  Tier = "working"
	TierEpisodic Tier = "episodic"
	TierSemantic Tier = "semantic"
)

// MemoryEvent represents an event emitted during a consolidation run.
type MemoryEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains the failure reason for tier_failed events.
	Error error

	// RunID identifies the consolidation run the event belongs to.
	RunID string

	// Tier is set on tier events.
	Tier Tier

	// Type indicates the kind of event.
	Type MemoryEventType

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Run carries the outcome for run_complete events.
	Run *RunSummary

	// Purged lists deleted working files for purge events.
	Purged []string
}

// RunSummary describes a finished consolidation run.
type RunSummary struct {
	EpisodicUpdated bool
	SemanticUpdated bool
	PurgedFiles     int
	Duration        time.Duration
}

func newEvent(t MemoryEventType, runID string) *MemoryEvent {
	return &MemoryEvent{
		Type:      t,
		RunID:     runID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewRunStartEvent creates a run start event.
func NewRunStartEvent(runID string) *MemoryEvent {
	return newEvent(EventTypeRunStart, runID)
}

// NewRunSkippedEvent creates an event for a trigger that arrived mid-run.
func NewRunSkippedEvent() *MemoryEvent {
	return newEvent(EventTypeRunSkipped, "")
}

// NewTierUpdatedEvent creates a tier updated event.
func NewTierUpdatedEvent(runID string, tier Tier, bytes int) *MemoryEvent {
	e := newEvent(EventTypeTierUpdated, runID)
	e.Tier = tier
	e.Metadata["bytes"] = bytes
	return e
}

// NewTierUnchangedEvent creates a tier unchanged event.
func NewTierUnchangedEvent(runID string, tier Tier, reason string) *MemoryEvent {
	e := newEvent(EventTypeTierUnchanged, runID)
	e.Tier = tier
	e.Metadata["reason"] = reason
	return e
}

// NewTierFailedEvent creates a tier failed event.
func NewTierFailedEvent(runID string, tier Tier, err error) *MemoryEvent {
	e := newEvent(EventTypeTierFailed, runID)
	e.Tier = tier
	e.Error = err
	return e
}

// NewPurgeEvent creates a purge event.
func NewPurgeEvent(runID string, purged []string) *MemoryEvent {
	e := newEvent(EventTypePurge, runID)
	e.Tier = TierWorking
	e.Purged = purged
	return e
}

// NewRunCompleteEvent creates a run complete event.
func NewRunCompleteEvent(runID string, summary RunSummary) *MemoryEvent {
	e := newEvent(EventTypeRunComplete, runID)
	e.Run = &summary
	return e
}

// IsTierEvent returns true if this event concerns a single tier.
func (e *MemoryEvent) IsTierEvent() bool {
	return e.Type == EventTypeTierUpdated ||
		e.Type == EventTypeTierUnchanged ||
		e.Type == EventTypeTierFailed
}

// IsErrorEvent returns true if this is a failure event.
func (e *MemoryEvent) IsErrorEvent() bool {
	return e.Type == EventTypeTierFailed
}
