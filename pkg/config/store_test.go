package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		store, err := NewFileStore(path)
		require.NoError(t, err)
		assert.Equal(t, path, store.Path())
		assert.False(t, store.IsModified())

		all, err := store.GetAll()
		require.NoError(t, err)
		assert.Empty(t, all)
		assert.NoFileExists(t, path, "nothing is written until Save")
	})

	t.Run("default path", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		store, err := NewFileStore("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".mnemo", "config.json"), store.Path())
	})

	t.Run("loads existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		raw := `{"version":"1.0","sections":{"memory":{"retention_days":7,"root_dir":"/tmp/m"}}}`
		require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

		store, err := NewFileStore(path)
		require.NoError(t, err)
		section, err := store.GetSection("memory")
		require.NoError(t, err)
		assert.Equal(t, float64(7), section["retention_days"])
		assert.Equal(t, "/tmp/m", section["root_dir"])
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, err := NewFileStore(path)
		assert.Error(t, err)
	})
}

func TestFileStore_SaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "config.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSection("oracle", map[string]any{"backend": "ollama", "api_key": "k"}))
	assert.True(t, store.IsModified())
	require.NoError(t, store.Save())
	assert.False(t, store.IsModified())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	section, err := reloaded.GetSection("oracle")
	require.NoError(t, err)
	assert.Equal(t, "ollama", section["backend"])
	assert.Equal(t, "k", section["api_key"])
}

func TestFileStore_Copies(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	in := map[string]any{"key": "value"}
	require.NoError(t, store.SetSection("s", in))
	in["key"] = "mutated"

	out, err := store.GetSection("s")
	require.NoError(t, err)
	assert.Equal(t, "value", out["key"])

	out["key"] = "mutated"
	again, err := store.GetSection("s")
	require.NoError(t, err)
	assert.Equal(t, "value", again["key"])

	all, err := store.GetAll()
	require.NoError(t, err)
	all["s"]["key"] = "mutated"
	again, err = store.GetSection("s")
	require.NoError(t, err)
	assert.Equal(t, "value", again["key"])
}

func TestFileStore_GetMissingSection(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	section, err := store.GetSection("nope")
	require.NoError(t, err)
	assert.NotNil(t, section)
	assert.Empty(t, section)
}
