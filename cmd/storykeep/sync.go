package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/storykeep/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload pending actions now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if !a.probe(ctx) {
				printWarn("Offline: nothing was synced.")
				return nil
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() { _ = a.dispatcher.Run(runCtx) }()

			out, err := a.manager.SyncNow(ctx)
			if err != nil {
				return err
			}
			printOutcome(out.Result)
			return nil
		})
	},
}

func printOutcome(res syncer.Result) {
	if res.Skipped {
		printWarn("Sync skipped: " + res.Reason)
		return
	}
	if res.Interrupted {
		printWarn("Sync interrupted; unattempted actions stay queued.")
	}
	if res.Attempted == 0 && res.Ignored == 0 {
		if res.Interrupted {
			return
		}
		printInfo("Nothing to sync.")
		return
	}
	printInfo(fmt.Sprintf("Synced %d of %d actions.", res.Succeeded, res.Attempted))
	if res.Ignored > 0 {
		printWarn(fmt.Sprintf("Skipped %d actions of unknown kind.", res.Ignored))
	}
	for _, f := range res.Failures {
		fmt.Println(errorStyle.Render("  failed ") + fmt.Sprintf("#%d %s: %v", f.ActionID, f.Kind, f.Err))
	}
	if res.Requeued > 0 {
		printWarn(fmt.Sprintf("%d failed actions stay queued for the next sync.", res.Requeued))
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
