package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RunOutcome is the coarse result recorded for the last consolidation run.
type RunOutcome string

const (
	OutcomeNone    RunOutcome = "none"
	OutcomeFull    RunOutcome = "full"
	OutcomePartial RunOutcome = "partial"
	OutcomeFailed  RunOutcome = "failed"
	OutcomeEmpty   RunOutcome = "empty"
)

// State is the consolidation ledger kept in <root>/.state.yaml. It is
// advisory: losing it only costs one redundant oracle call per tier.
type State struct {
	LastRunAt     time.Time  `yaml:"last_run_at,omitempty" json:"last_run_at,omitempty"`
	LastRunResult RunOutcome `yaml:"last_run_result,omitempty" json:"last_run_result,omitempty"`

	LastEpisodicSuccess time.Time `yaml:"last_episodic_success,omitempty" json:"last_episodic_success,omitempty"`
	LastSemanticSuccess time.Time `yaml:"last_semantic_success,omitempty" json:"last_semantic_success,omitempty"`

	// WorkingFingerprint is the hash of the working content summarized by
	// the last successful episodic update.
	WorkingFingerprint string `yaml:"working_fingerprint,omitempty" json:"working_fingerprint,omitempty"`
	// GraduatedFingerprint is the hash of the episodic text fed to the last
	// successful semantic update.
	GraduatedFingerprint string `yaml:"graduated_fingerprint,omitempty" json:"graduated_fingerprint,omitempty"`

	// Covered records, per working file name, the size and modification
	// time the file had when a successful episodic update read it. Only a
	// file still matching its entry is eligible for the covered purge.
	Covered map[string]CoveredFile `yaml:"covered,omitempty" json:"covered,omitempty"`

	EpisodicFailures int `yaml:"episodic_failures" json:"episodic_failures"`
	SemanticFailures int `yaml:"semantic_failures" json:"semantic_failures"`
	TotalRuns        int `yaml:"total_runs" json:"total_runs"`
}

// CoveredFile is what a successful episodic update saw of one working file.
type CoveredFile struct {
	Size    int64     `yaml:"size" json:"size"`
	ModTime time.Time `yaml:"mod_time" json:"mod_time"`
}

// MarkCovered records files as read by a successful episodic update.
func (st *State) MarkCovered(files []WorkingFile) {
	if len(files) == 0 {
		return
	}
	if st.Covered == nil {
		st.Covered = make(map[string]CoveredFile, len(files))
	}
	for _, f := range files {
		st.Covered[f.Name] = CoveredFile{Size: f.Size, ModTime: f.ModTime}
	}
}

// IsCovered reports whether f is unchanged since a successful episodic
// update read it.
func (st State) IsCovered(f WorkingFile) bool {
	c, ok := st.Covered[f.Name]
	return ok && c.Size == f.Size && !f.ModTime.After(c.ModTime)
}

// ForgetMissing drops coverage entries for files no longer in present.
func (st *State) ForgetMissing(present []WorkingFile) {
	if len(st.Covered) == 0 {
		return
	}
	keep := make(map[string]bool, len(present))
	for _, f := range present {
		keep[f.Name] = true
	}
	for name := range st.Covered {
		if !keep[name] {
			delete(st.Covered, name)
		}
	}
	if len(st.Covered) == 0 {
		st.Covered = nil
	}
}

// StatePath returns the ledger path.
func (s *Store) StatePath() string { return filepath.Join(s.root, StateFile) }

// LoadState reads the ledger. A missing ledger yields a zero State; a corrupt
// one is logged and also yields a zero State.
func (s *Store) LoadState() (State, error) {
	var st State
	b, err := os.ReadFile(s.StatePath())
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("store: read state: %w", err)
	}
	if err := yaml.Unmarshal(b, &st); err != nil {
		debugLog.Warnf("ignoring corrupt state file %s: %v", s.StatePath(), err)
		return State{}, nil
	}
	return st, nil
}

// SaveState writes the ledger atomically.
func (s *Store) SaveState(st State) error {
	b, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}
	if err := writeFileAtomic(s.StatePath(), b); err != nil {
		return fmt.Errorf("store: write state: %w", err)
	}
	return nil
}
