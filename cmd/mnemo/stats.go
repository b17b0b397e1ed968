package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/memory/mirror"
	"github.com/entrhq/mnemo/pkg/memory/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the memory directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := store.New(rootDir())
		if err != nil {
			return err
		}
		cache := mirror.NewCache(st)
		if err := cache.Refresh(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		snap := cache.Snapshot()

		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the full snapshot as JSON")
}

func printStats(w io.Writer, snap mirror.Snapshot) {
	fmt.Fprintf(w, "root:      %s\n", snap.Root)
	fmt.Fprintf(w, "working:   %d files, %d lines, %d bytes\n", snap.Working.Files, snap.Working.Lines, snap.Working.Bytes)
	fmt.Fprintf(w, "episodic:  %d bytes, ~%d tokens\n", len(snap.Episodic), snap.EpisodicTokens)
	fmt.Fprintf(w, "semantic:  %d bytes, ~%d tokens", len(snap.Semantic), snap.SemanticTokens)
	if snap.Semantic != "" && !snap.SemanticHasSentinel {
		fmt.Fprint(w, " (no sentinel line)")
	}
	fmt.Fprintln(w)

	state := snap.State
	if state.LastRunAt.IsZero() {
		fmt.Fprintln(w, "last run:  never")
		return
	}
	fmt.Fprintf(w, "last run:  %s, %s\n", state.LastRunAt.Format(time.RFC3339), state.LastRunResult)
	fmt.Fprintf(w, "runs:      %d (episodic failures %d, semantic failures %d)\n",
		state.TotalRuns, state.EpisodicFailures, state.SemanticFailures)
}
