// Package sync implements the one-shot sync command: replay queued offline
// actions now instead of waiting for the scheduler.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/msaario/campusync/internal/app"
	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/syncer"
)

// Command creates the sync command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [job]",
		Short: "Replay queued offline actions now",
		Long:  "Run a sync pass for one job, or for every registered job when no name is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), settings, args)
		},
	}
}

func runSync(ctx context.Context, settings *conf.Settings, args []string) error {
	a, err := app.New(settings)
	if err != nil {
		return err
	}
	defer a.Close()

	if ctx == nil {
		ctx = context.Background()
	}

	var reports []*syncer.Report
	if len(args) == 1 {
		report, err := a.Engine.SyncJob(ctx, args[0])
		if err != nil {
			return err
		}
		reports = append(reports, report)
	} else {
		if reports, err = a.Engine.SyncAll(ctx); err != nil {
			return err
		}
	}

	for _, r := range reports {
		printReport(r)
	}
	return nil
}

func printReport(r *syncer.Report) {
	fmt.Printf("%s: %s (confirmed %d, rejected %d, deferred %d, took %s)\n",
		r.Job, r.Outcome(), r.Confirmed, len(r.Rejected), r.Deferred,
		r.Finished.Sub(r.Started).Round(time.Millisecond))
	for _, rej := range r.Rejected {
		fmt.Printf("  rejected %s: %s\n", rej.ItemKey, rej.Message)
	}
}
