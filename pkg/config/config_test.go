package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/oracle"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	globalMu.Lock()
	globalManager = nil
	globalMu.Unlock()
	t.Cleanup(func() {
		globalMu.Lock()
		globalManager = nil
		globalMu.Unlock()
	})
}

func TestInitialize(t *testing.T) {
	resetGlobal(t)
	assert.False(t, IsInitialized())
	assert.Nil(t, GetMemory())
	assert.Nil(t, GetOracle())
	assert.Equal(t, DefaultMemorySettings(), Memory())
	assert.Panics(t, func() { Global() })

	require.NoError(t, Initialize(filepath.Join(t.TempDir(), "config.json")))
	assert.True(t, IsInitialized())

	sections := Global().GetSections()
	require.Len(t, sections, 2)
	assert.Equal(t, SectionIDMemory, sections[0].ID())
	assert.Equal(t, SectionIDOracle, sections[1].ID())
	require.NotNil(t, GetMemory())
	require.NotNil(t, GetOracle())
}

func TestInitialize_PersistsAcrossRestarts(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Initialize(path))

	GetMemory().SetDistillationFrequency(12)
	GetMemory().SetCaptureEnabled(false)
	require.NoError(t, GetOracle().SetData(map[string]any{"backend": "ollama", "model": "qwen"}))
	require.NoError(t, Global().SaveAll())

	resetGlobal(t)
	require.NoError(t, Initialize(path))
	mem := Memory()
	assert.Equal(t, 12, mem.DistillationFrequency)
	assert.False(t, mem.CaptureEnabled)
	assert.True(t, mem.DistillationEnabled)
	assert.Equal(t, 5, mem.RetentionDays)
	assert.Equal(t, "ollama", GetOracle().Settings().Backend)
	assert.Equal(t, "qwen", GetOracle().Settings().Model)
}

func TestMemorySection_SetData(t *testing.T) {
	s := NewMemorySection()
	require.NoError(t, s.SetData(map[string]any{
		"root_dir":               "/data/mem",
		"capture_enabled":        "false",
		"distillation_frequency": float64(6),
		"retention_days":         "9",
		"purge_policy":           " Always ",
		"episodic_target_words":  500,
		"unknown":                "ignored",
		"assistant_char_budget":  []string{"wrong shape"},
	}))

	got := s.Settings()
	assert.Equal(t, "/data/mem", got.RootDir)
	assert.False(t, got.CaptureEnabled)
	assert.Equal(t, 6, got.DistillationFrequency)
	assert.Equal(t, 9, got.RetentionDays)
	assert.Equal(t, "always", got.PurgePolicy)
	assert.Equal(t, 500, got.EpisodicTargetWords)
	assert.Equal(t, 2000, got.AssistantCharBudget)
	require.NoError(t, s.Validate())

	s.Reset()
	assert.Equal(t, DefaultMemorySettings(), s.Settings())
}

func TestMemorySection_Validate(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantErr string
	}{
		{"defaults", nil, ""},
		{"frequency is clamped, not rejected", map[string]any{"distillation_frequency": 99}, ""},
		{"zero retention", map[string]any{"retention_days": 0}, "retention_days"},
		{"unknown purge policy", map[string]any{"purge_policy": "never"}, "purge_policy"},
		{"tiny target", map[string]any{"episodic_target_words": 10}, "episodic_target_words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemorySection()
			require.NoError(t, s.SetData(tt.data))
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var details ValidationErrors
			require.ErrorAs(t, err, &details)
			require.Len(t, details, 1)
			assert.Equal(t, tt.wantErr, details[0].Field)
		})
	}
}

func TestMemorySettings_Derived(t *testing.T) {
	m := DefaultMemorySettings()
	m.DistillationFrequency = 0
	assert.Equal(t, 1, m.TimesPerDay())
	m.DistillationFrequency = 40
	assert.Equal(t, 12, m.TimesPerDay())

	m.PurgePolicy = "always"
	m.RetentionDays = 3
	cfg := m.EngineConfig()
	assert.Equal(t, consolidation.PurgeAlways, cfg.PurgePolicy)
	assert.Equal(t, 3, cfg.RetentionDays)
}

func TestMemorySettings_ResolvedRootDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(RootDirEnv, "")

	m := DefaultMemorySettings()
	assert.Equal(t, filepath.Join(home, ".mnemo", "memory"), m.ResolvedRootDir())

	m.RootDir = "~/notes"
	assert.Equal(t, filepath.Join(home, "notes"), m.ResolvedRootDir())

	t.Setenv(RootDirEnv, "/srv/mnemo")
	assert.Equal(t, "/srv/mnemo", m.ResolvedRootDir())
}

func TestOracleSection_Validate(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantErr bool
	}{
		{"defaults", nil, false},
		{"openai with url", map[string]any{"backend": "openai", "base_url": "https://example.com/v1"}, false},
		{"unknown backend", map[string]any{"backend": "bard"}, true},
		{"bad url", map[string]any{"base_url": "not a url"}, true},
		{"bad timeout", map[string]any{"timeout": "soon"}, true},
		{"negative timeout", map[string]any{"timeout": "-5s"}, true},
		{"command without argv", map[string]any{"backend": "command"}, true},
		{"command with argv", map[string]any{"backend": "command", "command": "llm -m local"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewOracleSection()
			require.NoError(t, s.SetData(tt.data))
			if tt.wantErr {
				assert.Error(t, s.Validate())
			} else {
				assert.NoError(t, s.Validate())
			}
		})
	}
}

func TestOracleSettings_TimeoutDuration(t *testing.T) {
	assert.Equal(t, oracle.DefaultTimeout, OracleSettings{}.TimeoutDuration())
	assert.Equal(t, 30*time.Second, OracleSettings{Timeout: "30s"}.TimeoutDuration())
	assert.Equal(t, oracle.DefaultTimeout, OracleSettings{Timeout: "garbage"}.TimeoutDuration())
}
