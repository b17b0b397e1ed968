// Package main is the mnemo command: capture conversation turns into a
// tiered memory directory, consolidate them on a schedule or on demand, and
// inspect the result.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/config"
	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/metrics"
	"github.com/entrhq/mnemo/pkg/oracle"
)

const version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	root       string
	logLevel   string
	oracle     config.OracleOverrides
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Tiered conversational memory",
	Long: `mnemo keeps a memory directory of three tiers:

  working/      raw per-day transcripts of captured turns
  episodic.md   a rolling summary of the recent window
  semantic.md   durable facts, with a hand-edited region above the sentinel

Consolidation distills working into episodic and episodic into semantic
using an LLM oracle, then purges working files the summary covers.

Configuration is read from ~/.mnemo/config.json (or --config). Flags take
precedence over environment variables, which take precedence over the file.

Environment Variables:
  MNEMO_ROOT             memory directory
  MNEMO_ORACLE_BACKEND   openai, ollama or command
  OPENAI_API_KEY         API key for the openai backend
  OPENAI_BASE_URL        base URL for OpenAI-compatible APIs
  MNEMO_LOG_DIR          log directory (default ~/.mnemo/logs)`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.mnemo/config.json)")
	pf.StringVar(&flags.root, "root", "", "memory directory (overrides MNEMO_ROOT and the config file)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.oracle.Backend, "backend", "", "oracle backend: openai, ollama, command")
	pf.StringVar(&flags.oracle.Model, "model", "", "oracle model")
	pf.StringVar(&flags.oracle.BaseURL, "base-url", "", "oracle base URL")
	pf.StringVar(&flags.oracle.APIKey, "api-key", "", "oracle API key")
	pf.StringVar(&flags.oracle.Command, "oracle-command", "", "command for the command backend")
	pf.DurationVar(&flags.oracle.Timeout, "oracle-timeout", 0, "per-call oracle timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	if flags.logLevel != "" {
		logging.SetLevel(logging.ParseLevel(flags.logLevel))
	}
	if err := config.Initialize(flags.configPath); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return nil
}

// app is what the subcommands share after setup.
type app struct {
	settings config.MemorySettings
	metrics  *metrics.Manager
	svc      *memory.Service
}

// newApp builds the memory service from flags, environment and config. An
// oracle that cannot be built is reported on stderr and replaced by one that
// always fails, so capture and inspection keep working.
func newApp(cmd *cobra.Command, withMetrics bool) (*app, error) {
	settings := config.Memory()
	root := flags.root
	if root == "" {
		root = settings.ResolvedRootDir()
	}

	m := metrics.NoOpManager()
	if withMetrics {
		m = metrics.NewManager(metrics.DefaultConfig())
	}

	client, err := config.BuildOracle(flags.oracle, oracle.WithObserver(m.ObserveOracleCall))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	svc, err := memory.New(memory.Options{
		Root:                root,
		CaptureEnabled:      settings.CaptureEnabled,
		DistillationEnabled: settings.DistillationEnabled,
		TimesPerDay:         settings.TimesPerDay(),
		AssistantBudget:     settings.AssistantCharBudget,
		Engine:              settings.EngineConfig(),
		Oracle:              client,
		Metrics:             m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open memory at %s: %w", root, err)
	}
	return &app{settings: settings, metrics: m, svc: svc}, nil
}

func (a *app) Close() {
	a.svc.Close()
}

// shutdownTimeout bounds graceful shutdown of long-running commands.
const shutdownTimeout = 10 * time.Second
