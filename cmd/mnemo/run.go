package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one consolidation now",
	Long: `Run distills the recent working window into episodic.md, graduates
durable facts into semantic.md and purges expired working files.

A tier whose input has not changed since its last successful update is not
sent to the oracle again. Failed tiers are retried on the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, runErr := a.svc.RunNow(cmd.Context())
		if res == nil {
			return runErr
		}

		out := cmd.OutOrStdout()
		if runJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			body := map[string]any{
				"run_id":           res.RunID,
				"episodic":         res.Episodic,
				"semantic":         res.Semantic,
				"episodic_updated": res.EpisodicUpdated,
				"semantic_updated": res.SemanticUpdated,
				"empty_input":      res.EmptyInput,
				"purged":           res.Purged,
				"duration_ms":      res.Duration.Milliseconds(),
			}
			if runErr != nil {
				body["errors"] = runErr.Error()
			}
			if err := enc.Encode(body); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "%s\n", res.String())
			for _, p := range res.Purged {
				fmt.Fprintf(out, "  purged %s\n", p)
			}
			fmt.Fprintf(out, "memory: %s (finished %s)\n", a.svc.Root(), time.Now().Format(time.Kitchen))
		}
		if runErr != nil {
			return fmt.Errorf("consolidation incomplete: %w", runErr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
}
