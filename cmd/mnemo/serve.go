package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/api"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/types"
)

var serveOpts struct {
	addr    string
	watch   bool
	metrics bool
	quiet   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory API and run scheduled consolidation",
	Long: `Serve starts the HTTP API, the consolidation scheduler and a watcher
that refreshes the in-memory view when tier files are edited by hand.

Routes:
  GET  /health /stats /episodic /semantic /schedule /metrics
  POST /run
  PUT  /schedule
  POST /sessions/{id}/turns
  POST /sessions/{id}/close`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, serveOpts.metrics)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a.svc.Start()
		if serveOpts.watch {
			startWatcher(ctx, cmd.ErrOrStderr(), a.svc)
		}
		if !serveOpts.quiet {
			go printEvents(ctx, cmd.ErrOrStderr(), a.svc.Events())
		}

		srv := api.NewServer(serveOpts.addr, a.svc, a.metrics)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		fmt.Fprintf(cmd.ErrOrStderr(), "mnemo serving %s on http://%s\n", a.svc.Root(), srv.Addr())

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", api.DefaultAddr, "listen address")
	f.BoolVar(&serveOpts.watch, "watch", true, "refresh the view when tier files change on disk")
	f.BoolVar(&serveOpts.metrics, "metrics", true, "expose Prometheus metrics on /metrics")
	f.BoolVar(&serveOpts.quiet, "quiet", false, "do not print consolidation events")
}

// startWatcher runs the tier watcher until ctx is done. Failures are
// reported and otherwise ignored: the view still refreshes after each run.
func startWatcher(ctx context.Context, w io.Writer, svc *memory.Service) {
	watcher, err := svc.NewWatcher()
	if err != nil {
		fmt.Fprintf(w, "warning: file watcher unavailable: %v\n", err)
		return
	}
	go func() {
		if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(w, "warning: file watcher stopped: %v\n", err)
		}
	}()
}

func printEvents(ctx context.Context, w io.Writer, events <-chan *types.MemoryEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(w, formatEvent(ev))
		}
	}
}

func formatEvent(ev *types.MemoryEvent) string {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case types.EventTypeTierFailed:
		return fmt.Sprintf("%s %s %s: %v", ts, ev.Type, ev.Tier, ev.Error)
	case types.EventTypeTierUpdated, types.EventTypeTierUnchanged:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.Tier)
	case types.EventTypePurge:
		return fmt.Sprintf("%s purge %d file(s)", ts, len(ev.Purged))
	case types.EventTypeRunComplete:
		if ev.Run != nil {
			return fmt.Sprintf("%s run complete in %s (episodic updated %t, semantic updated %t)",
				ts, ev.Run.Duration.Round(time.Millisecond), ev.Run.EpisodicUpdated, ev.Run.SemanticUpdated)
		}
	}
	return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.RunID)
}
