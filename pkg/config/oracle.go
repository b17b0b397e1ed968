package config

import (
	"strings"
	"sync"
	"time"

	"github.com/entrhq/mnemo/pkg/oracle"
)

const (
	// SectionIDOracle is the identifier for the oracle settings section
	SectionIDOracle = "oracle"

	BackendOpenAI  = "openai"
	BackendOllama  = "ollama"
	BackendCommand = "command"
)

// OracleSettings is a plain copy of the oracle section.
type OracleSettings struct {
	Backend string `json:"backend" validate:"omitempty,oneof=openai ollama command"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url" validate:"omitempty,url"`
	APIKey  string `json:"api_key"`
	Command string `json:"command" validate:"required_if=Backend command"`
	Timeout string `json:"timeout" validate:"omitempty,duration"`
}

// TimeoutDuration parses Timeout, falling back to oracle.DefaultTimeout.
func (o OracleSettings) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(o.Timeout); err == nil && d > 0 {
		return d
	}
	return oracle.DefaultTimeout
}

// OracleSection manages which summarization backend consolidation uses.
type OracleSection struct {
	settings OracleSettings
	mu       sync.RWMutex
}

// NewOracleSection creates an oracle section with default settings.
func NewOracleSection() *OracleSection {
	return &OracleSection{settings: defaultOracleSettings()}
}

func defaultOracleSettings() OracleSettings {
	return OracleSettings{Timeout: oracle.DefaultTimeout.String()}
}

// ID returns the section identifier.
func (s *OracleSection) ID() string {
	return SectionIDOracle
}

// Title returns the section title.
func (s *OracleSection) Title() string {
	return "Oracle"
}

// Description returns the section description.
func (s *OracleSection) Description() string {
	return "The language model used to distill memory: openai (hosted, OpenAI-compatible), ollama (local HTTP) or command (a local program reading the prompt on stdin)."
}

// Data returns the current configuration data.
func (s *OracleSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"backend":  s.settings.Backend,
		"model":    s.settings.Model,
		"base_url": s.settings.BaseURL,
		"api_key":  s.settings.APIKey,
		"command":  s.settings.Command,
		"timeout":  s.settings.Timeout,
	}
}

// SetData updates the configuration from the provided data.
func (s *OracleSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["backend"].(string); ok {
		s.settings.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := data["model"].(string); ok {
		s.settings.Model = v
	}
	if v, ok := data["base_url"].(string); ok {
		s.settings.BaseURL = v
	}
	if v, ok := data["api_key"].(string); ok {
		s.settings.APIKey = v
	}
	if v, ok := data["command"].(string); ok {
		s.settings.Command = v
	}
	if v, ok := data["timeout"].(string); ok {
		s.settings.Timeout = v
	}
	return nil
}

// Validate validates the current configuration. Missing credentials are
// not a configuration error: consolidation simply fails until they exist.
func (s *OracleSection) Validate() error {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()
	return validateStruct(settings)
}

// Reset resets the section to default configuration.
func (s *OracleSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = defaultOracleSettings()
}

// Settings returns a copy of the current values.
func (s *OracleSection) Settings() OracleSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
