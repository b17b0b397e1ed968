package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/tui"
)

var watchSchedule bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the interactive memory panel",
	Long: `Watch opens a terminal panel showing tier sizes, the last run and the
episodic and semantic documents. Press r to consolidate now, c to copy the
current document, tab to switch views and q to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if watchSchedule {
			a.svc.Start()
		}
		startWatcher(ctx, io.Discard, a.svc)

		return tui.Run(ctx, a.svc)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchSchedule, "schedule", false, "also run scheduled consolidation while open")
}
