package config

import (
	"fmt"
	"os"
	"time"

	"github.com/entrhq/mnemo/pkg/oracle"
)

// BackendEnv selects the oracle backend when no flag is given.
const BackendEnv = "MNEMO_ORACLE_BACKEND"

// OracleOverrides are values given on the command line. Empty fields defer
// to the environment and then the config file.
type OracleOverrides struct {
	Backend string
	Model   string
	BaseURL string
	APIKey  string
	Command string
	Timeout time.Duration
}

// ResolveOracle merges oracle settings with precedence
// CLI flags > environment variables > config file > defaults.
func ResolveOracle(file OracleSettings, cli OracleOverrides) OracleSettings {
	out := OracleSettings{
		Backend: firstNonEmpty(cli.Backend, os.Getenv(BackendEnv), file.Backend, BackendOpenAI),
		Model:   firstNonEmpty(cli.Model, file.Model),
		BaseURL: firstNonEmpty(cli.BaseURL, os.Getenv("OPENAI_BASE_URL"), file.BaseURL),
		APIKey:  firstNonEmpty(cli.APIKey, os.Getenv("OPENAI_API_KEY"), file.APIKey),
		Command: firstNonEmpty(cli.Command, file.Command),
		Timeout: file.Timeout,
	}
	if cli.Timeout > 0 {
		out.Timeout = cli.Timeout.String()
	}
	return out
}

// NewBackend constructs the backend named by s.Backend.
func NewBackend(s OracleSettings) (oracle.Backend, error) {
	switch s.Backend {
	case "", BackendOpenAI:
		var opts []oracle.OpenAIOption
		if s.Model != "" {
			opts = append(opts, oracle.WithModel(s.Model))
		}
		if s.BaseURL != "" {
			opts = append(opts, oracle.WithBaseURL(s.BaseURL))
		}
		return oracle.NewOpenAIBackend(s.APIKey, opts...)
	case BackendOllama:
		return oracle.NewOllamaBackend(s.BaseURL, s.Model), nil
	case BackendCommand:
		return oracle.NewCommandBackend(s.Command)
	default:
		return nil, fmt.Errorf("unknown oracle backend %q (want openai, ollama or command)", s.Backend)
	}
}

// BuildOracle resolves the oracle settings from cli, the environment and the
// global config, then builds a client. When the backend cannot be built the
// returned client fails every call and the error explains why; callers
// normally log it and continue, since capture works without an oracle.
func BuildOracle(cli OracleOverrides, opts ...oracle.ClientOption) (*oracle.Client, error) {
	var file OracleSettings
	if section := GetOracle(); section != nil {
		file = section.Settings()
	}
	settings := ResolveOracle(file, cli)

	backend, err := NewBackend(settings)
	if err != nil {
		return oracle.Unavailable(err), fmt.Errorf("oracle unavailable: %w", err)
	}
	opts = append([]oracle.ClientOption{oracle.WithTimeout(settings.TimeoutDuration())}, opts...)
	return oracle.NewClient(backend, opts...), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
