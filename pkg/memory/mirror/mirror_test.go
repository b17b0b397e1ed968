package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mnemo/pkg/memory/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestCache_Refresh(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.WriteEpisodic("episodic text"))
	require.NoError(t, st.WriteSemanticMutable("- fact"))
	name := time.Now().Format("2006-01-02") + "-abc.md"
	require.NoError(t, os.WriteFile(filepath.Join(st.WorkingDir(), name), []byte("a\nb\n"), 0o600))

	c := NewCache(st)
	assert.Empty(t, c.Snapshot().Episodic, "empty until refreshed")

	require.NoError(t, c.Refresh())
	snap := c.Snapshot()
	assert.Equal(t, st.Root(), snap.Root)
	assert.Equal(t, "episodic text", snap.Episodic)
	assert.Greater(t, snap.EpisodicTokens, 0)
	assert.Equal(t, "- fact", snap.SemanticMutable)
	assert.True(t, snap.SemanticHasSentinel)
	assert.Equal(t, store.WorkingStats{Files: 1, Bytes: 4, Lines: 2}, snap.Working)
	assert.False(t, snap.RefreshedAt.IsZero())
}

func TestCache_SnapshotIsStable(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.WriteEpisodic("v1"))
	c := NewCache(st)
	require.NoError(t, c.Refresh())

	require.NoError(t, st.WriteEpisodic("v2"))
	assert.Equal(t, "v1", c.Snapshot().Episodic, "disk changes are not visible until refresh")

	require.NoError(t, c.Refresh())
	assert.Equal(t, "v2", c.Snapshot().Episodic)
}

func TestCache_RefreshStats(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.WriteEpisodic("v1"))
	c := NewCache(st)
	require.NoError(t, c.Refresh())

	require.NoError(t, st.WriteEpisodic("v2"))
	name := time.Now().Format("2006-01-02") + "-abc.md"
	require.NoError(t, os.WriteFile(filepath.Join(st.WorkingDir(), name), []byte("x\n"), 0o600))

	require.NoError(t, c.RefreshStats())
	snap := c.Snapshot()
	assert.Equal(t, 1, snap.Working.Files)
	assert.Equal(t, "v1", snap.Episodic, "stats refresh leaves tier text alone")
}

func TestWatcher_RefreshesOnEdit(t *testing.T) {
	st := newStore(t)
	c := NewCache(st)
	require.NoError(t, c.Refresh())

	w, err := NewWatcher(c, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	changed := make(chan Snapshot, 10)
	w.OnChange(func(s Snapshot) { changed <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)
	// Give fsnotify a moment to register both directories.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(st.SemanticPath(), []byte("hand edit\n\n"+store.Sentinel+"\n\n- fact\n"), 0o600))

	select {
	case snap := <-changed:
		assert.Equal(t, "hand edit\n\n", snap.SemanticImmutable)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not refresh the cache")
	}
	assert.Equal(t, "- fact", c.Snapshot().SemanticMutable)

	require.NoError(t, w.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not return after Stop")
	}
	assert.NoError(t, w.Stop(), "stop is idempotent")
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	st := newStore(t)
	c := NewCache(st)
	w, err := NewWatcher(c, WithDebounce(time.Hour))
	require.NoError(t, err)
	defer w.Stop()

	w.handle(fsEvent(filepath.Join(st.Root(), "notes.txt")))
	w.handle(fsEvent(filepath.Join(st.WorkingDir(), "README.md")))
	w.mu.Lock()
	assert.Nil(t, w.timer)
	w.mu.Unlock()

	w.handle(fsEvent(filepath.Join(st.WorkingDir(), "2025-01-01-abc.md")))
	w.mu.Lock()
	assert.NotNil(t, w.timer)
	assert.False(t, w.fullDirty)
	w.mu.Unlock()
}

func fsEvent(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
