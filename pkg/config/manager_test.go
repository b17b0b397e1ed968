package config

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps sections in memory and can be told to fail.
type memStore struct {
	sections map[string]map[string]any
	loads    int
	saves    int
	loadErr  error
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{sections: make(map[string]map[string]any)}
}

func (m *memStore) Load() error {
	m.loads++
	return m.loadErr
}

func (m *memStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	return nil
}

func (m *memStore) GetSection(id string) (map[string]any, error) {
	return m.sections[id], nil
}

func (m *memStore) SetSection(id string, data map[string]any) error {
	m.sections[id] = data
	return nil
}

func (m *memStore) GetAll() (map[string]map[string]any, error) {
	return m.sections, nil
}

func newTestManager(t *testing.T) (*Manager, *memStore) {
	t.Helper()
	st := newMemStore()
	m := NewManager(st)
	require.NoError(t, m.RegisterSection(NewMemorySection()))
	require.NoError(t, m.RegisterSection(NewOracleSection()))
	return m, st
}

func TestManager_RegisterSection(t *testing.T) {
	m, st := newTestManager(t)
	assert.Same(t, Store(st), m.Store())

	err := m.RegisterSection(NewMemorySection())
	assert.True(t, errors.Is(err, ErrDuplicateSection))

	ids := []string{}
	for _, s := range m.GetSections() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{SectionIDMemory, SectionIDOracle}, ids, "registration order")

	_, ok := m.GetSection("ui")
	assert.False(t, ok)
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored values and keeps defaults for the rest", func(t *testing.T) {
		m, st := newTestManager(t)
		st.sections[SectionIDMemory] = map[string]any{
			"distillation_frequency": float64(6),
			"capture_enabled":        false,
		}

		require.NoError(t, m.LoadAll())
		assert.Equal(t, 1, st.loads)

		sec, _ := m.GetSection(SectionIDMemory)
		got := sec.(*MemorySection).Settings()
		assert.Equal(t, 6, got.DistillationFrequency)
		assert.False(t, got.CaptureEnabled)
		assert.Equal(t, DefaultMemorySettings().RetentionDays, got.RetentionDays)

		oracleSec, _ := m.GetSection(SectionIDOracle)
		assert.Equal(t, defaultOracleSettings(), oracleSec.(*OracleSection).Settings())
	})

	t.Run("store failure", func(t *testing.T) {
		m, st := newTestManager(t)
		st.loadErr = errors.New("disk gone")
		assert.ErrorContains(t, m.LoadAll(), "disk gone")
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("writes every section", func(t *testing.T) {
		m, st := newTestManager(t)
		sec, _ := m.GetSection(SectionIDMemory)
		sec.(*MemorySection).SetDistillationFrequency(2)

		require.NoError(t, m.SaveAll())
		assert.Equal(t, 1, st.saves)
		assert.Equal(t, 2, st.sections[SectionIDMemory]["distillation_frequency"])
		assert.Contains(t, st.sections, SectionIDOracle)
	})

	t.Run("invalid section blocks the save", func(t *testing.T) {
		m, st := newTestManager(t)
		sec, _ := m.GetSection(SectionIDOracle)
		require.NoError(t, sec.SetData(map[string]any{"backend": "telepathy"}))

		err := m.SaveAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "section oracle is invalid")
		assert.Zero(t, st.saves)
		assert.Empty(t, st.sections, "nothing is staged when validation fails")
	})

	t.Run("store failure", func(t *testing.T) {
		m, st := newTestManager(t)
		st.saveErr = errors.New("read-only")
		assert.ErrorContains(t, m.SaveAll(), "read-only")
	})
}

func TestManager_ResetAll(t *testing.T) {
	m, _ := newTestManager(t)
	sec, _ := m.GetSection(SectionIDMemory)
	mem := sec.(*MemorySection)
	mem.SetCaptureEnabled(false)
	mem.SetRootDir("/elsewhere")

	m.ResetAll()
	assert.Equal(t, DefaultMemorySettings(), mem.Settings())
}

func TestManager_ConcurrentReads(t *testing.T) {
	m := NewManager(newMemStore())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = registerAs(m, fmt.Sprintf("memory-%d", i), NewMemorySection())
			m.GetSections()
			m.GetSection(SectionIDMemory)
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.GetSections(), 8)
}

// renamed gives a section a different ID so one type can be registered
// several times.
type renamed struct {
	Section
	id string
}

func (r renamed) ID() string { return r.id }

func registerAs(m *Manager, id string, s Section) error {
	return m.RegisterSection(renamed{Section: s, id: id})
}
