package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/entrhq/mnemo/pkg/memory/capture"
	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/memory/retention"
	"github.com/entrhq/mnemo/pkg/memory/scheduler"
)

const (
	// SectionIDMemory is the identifier for the memory settings section
	SectionIDMemory = "memory"

	// RootDirEnv overrides the configured memory directory.
	RootDirEnv = "MNEMO_ROOT"
)

// MemorySettings is a plain copy of the memory section handed to library
// code.
type MemorySettings struct {
	RootDir               string `json:"root_dir"`
	CaptureEnabled        bool   `json:"capture_enabled"`
	DistillationEnabled   bool   `json:"distillation_enabled"`
	DistillationFrequency int    `json:"distillation_frequency"`
	RetentionDays         int    `json:"retention_days" validate:"gte=1,lte=365"`
	AssistantCharBudget   int    `json:"assistant_char_budget" validate:"gte=1"`
	PurgePolicy           string `json:"purge_policy" validate:"oneof=covered always"`
	EpisodicTargetWords   int    `json:"episodic_target_words" validate:"gte=50,lte=20000"`
}

// DefaultMemorySettings returns the out-of-the-box values. RootDir is left
// empty and resolved by ResolvedRootDir.
func DefaultMemorySettings() MemorySettings {
	return MemorySettings{
		CaptureEnabled:        true,
		DistillationEnabled:   true,
		DistillationFrequency: scheduler.DefaultTimesPerDay,
		RetentionDays:         retention.DefaultWindowDays,
		AssistantCharBudget:   capture.DefaultAssistantBudget,
		PurgePolicy:           string(consolidation.PurgeCovered),
		EpisodicTargetWords:   consolidation.DefaultEpisodicTargetWords,
	}
}

// ResolvedRootDir returns the memory directory: MNEMO_ROOT, then the
// configured value, then ~/.mnemo/memory. A leading ~ is expanded.
func (m MemorySettings) ResolvedRootDir() string {
	dir := os.Getenv(RootDirEnv)
	if dir == "" {
		dir = m.RootDir
	}
	if dir == "" {
		dir = filepath.Join("~", ".mnemo", "memory")
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return dir
}

// TimesPerDay returns the distillation frequency clamped to the supported
// range. Out-of-range values are never rejected.
func (m MemorySettings) TimesPerDay() int {
	return scheduler.Clamp(m.DistillationFrequency)
}

// EngineConfig maps the settings onto the consolidation engine.
func (m MemorySettings) EngineConfig() consolidation.Config {
	return consolidation.Config{
		RetentionDays:       m.RetentionDays,
		PurgePolicy:         consolidation.ParsePurgePolicy(m.PurgePolicy),
		EpisodicTargetWords: m.EpisodicTargetWords,
	}
}

// MemorySection manages where memory lives and how it is distilled.
type MemorySection struct {
	settings MemorySettings
	mu       sync.RWMutex
}

// NewMemorySection creates a memory section with default settings.
func NewMemorySection() *MemorySection {
	return &MemorySection{settings: DefaultMemorySettings()}
}

// ID returns the section identifier.
func (s *MemorySection) ID() string {
	return SectionIDMemory
}

// Title returns the section title.
func (s *MemorySection) Title() string {
	return "Memory"
}

// Description returns the section description.
func (s *MemorySection) Description() string {
	return "Where conversation memory is stored, whether turns are captured, and how often working memory is distilled into episodic and semantic memory."
}

// Data returns the current configuration data.
func (s *MemorySection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"root_dir":               s.settings.RootDir,
		"capture_enabled":        s.settings.CaptureEnabled,
		"distillation_enabled":   s.settings.DistillationEnabled,
		"distillation_frequency": s.settings.DistillationFrequency,
		"retention_days":         s.settings.RetentionDays,
		"assistant_char_budget":  s.settings.AssistantCharBudget,
		"purge_policy":           s.settings.PurgePolicy,
		"episodic_target_words":  s.settings.EpisodicTargetWords,
	}
}

// SetData updates the settings from data. Unknown keys and values of the
// wrong shape are ignored.
func (s *MemorySection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["root_dir"].(string); ok {
		s.settings.RootDir = v
	}
	if v, ok := boolValue(data["capture_enabled"]); ok {
		s.settings.CaptureEnabled = v
	}
	if v, ok := boolValue(data["distillation_enabled"]); ok {
		s.settings.DistillationEnabled = v
	}
	if v, ok := intValue(data["distillation_frequency"]); ok {
		s.settings.DistillationFrequency = v
	}
	if v, ok := intValue(data["retention_days"]); ok {
		s.settings.RetentionDays = v
	}
	if v, ok := intValue(data["assistant_char_budget"]); ok {
		s.settings.AssistantCharBudget = v
	}
	if v, ok := data["purge_policy"].(string); ok {
		s.settings.PurgePolicy = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := intValue(data["episodic_target_words"]); ok {
		s.settings.EpisodicTargetWords = v
	}
	return nil
}

// Validate validates the current configuration.
func (s *MemorySection) Validate() error {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()
	return validateStruct(settings)
}

// Reset resets the section to default configuration.
func (s *MemorySection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultMemorySettings()
}

// Settings returns a copy of the current values.
func (s *MemorySection) Settings() MemorySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetDistillationFrequency records a new frequency. The value is stored as
// given and clamped when read through TimesPerDay.
func (s *MemorySection) SetDistillationFrequency(timesPerDay int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.DistillationFrequency = timesPerDay
}

// SetCaptureEnabled toggles turn capture.
func (s *MemorySection) SetCaptureEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.CaptureEnabled = enabled
}

// SetRootDir changes the memory directory.
func (s *MemorySection) SetRootDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.RootDir = dir
}
