package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mnemo/pkg/oracle"
)

func clearOracleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv(BackendEnv, "")
}

func TestResolveOracle(t *testing.T) {
	file := OracleSettings{
		Backend: "ollama",
		Model:   "file-model",
		BaseURL: "http://file.example.com",
		APIKey:  "file-key",
		Command: "file-cmd",
		Timeout: "45s",
	}

	tests := []struct {
		name string
		env  map[string]string
		cli  OracleOverrides
		want OracleSettings
	}{
		{
			name: "file only",
			want: file,
		},
		{
			name: "env beats file",
			env:  map[string]string{"OPENAI_API_KEY": "env-key", "OPENAI_BASE_URL": "http://env.example.com", BackendEnv: "openai"},
			want: OracleSettings{Backend: "openai", Model: "file-model", BaseURL: "http://env.example.com", APIKey: "env-key", Command: "file-cmd", Timeout: "45s"},
		},
		{
			name: "cli beats env",
			env:  map[string]string{"OPENAI_API_KEY": "env-key", BackendEnv: "openai"},
			cli:  OracleOverrides{Backend: "command", Model: "m", APIKey: "cli-key", Command: "run-me", Timeout: time.Minute},
			want: OracleSettings{Backend: "command", Model: "m", BaseURL: "http://file.example.com", APIKey: "cli-key", Command: "run-me", Timeout: "1m0s"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOracleEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, ResolveOracle(file, tt.cli))
		})
	}

	t.Run("defaults to openai", func(t *testing.T) {
		clearOracleEnv(t)
		assert.Equal(t, BackendOpenAI, ResolveOracle(OracleSettings{}, OracleOverrides{}).Backend)
	})
}

func TestNewBackend(t *testing.T) {
	clearOracleEnv(t)

	b, err := NewBackend(OracleSettings{Backend: "openai", APIKey: "k", Model: "gpt-x", BaseURL: "http://local/v1/"})
	require.NoError(t, err)
	openaiBackend, ok := b.(*oracle.OpenAIBackend)
	require.True(t, ok)
	assert.Equal(t, "gpt-x", openaiBackend.Model())
	assert.Equal(t, "http://local/v1", openaiBackend.BaseURL())

	_, err = NewBackend(OracleSettings{Backend: "openai"})
	assert.True(t, errors.Is(err, oracle.ErrNoCredentials))

	b, err = NewBackend(OracleSettings{Backend: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", b.Name())

	b, err = NewBackend(OracleSettings{Backend: "command", Command: "cat"})
	require.NoError(t, err)
	assert.Equal(t, "command", b.Name())

	_, err = NewBackend(OracleSettings{Backend: "telepathy"})
	assert.Error(t, err)
}

func TestBuildOracle(t *testing.T) {
	resetGlobal(t)
	clearOracleEnv(t)
	require.NoError(t, Initialize(filepath.Join(t.TempDir(), "config.json")))

	t.Run("missing credentials yield a failing client", func(t *testing.T) {
		client, err := BuildOracle(OracleOverrides{})
		require.Error(t, err)
		require.NotNil(t, client)
		_, ok := client.Summarize(context.Background(), "sys", "prompt")
		assert.False(t, ok)
	})

	t.Run("config file backend", func(t *testing.T) {
		require.NoError(t, GetOracle().SetData(map[string]any{"backend": "command", "command": "cat", "timeout": "5s"}))
		client, err := BuildOracle(OracleOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "command", client.BackendName())
		assert.Equal(t, 5*time.Second, client.Timeout())
	})

	t.Run("cli timeout wins", func(t *testing.T) {
		client, err := BuildOracle(OracleOverrides{Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, time.Second, client.Timeout())
	})
}
