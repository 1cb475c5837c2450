package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/nogit/output"
)

var watchKinds []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print snapshot events as the daemon produces them",
	Long: `Stream events from the workspace daemon until interrupted:

  captured  a snapshot was written
  pruned    retention removed old snapshots`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchKinds, "kind", nil, "event kinds to show (captured, pruned)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("no daemon running for %s; run 'nogit daemon start'", cfg.Workspace)
	}
	defer c.Close() //nolint:errcheck // best effort

	printVerbose("watching %s", cfg.Workspace)
	return c.WatchEvents(ctx, func(ev *nogitv1.Event) error {
		_, err := fmt.Fprintln(stdout, formatEvent(ev))
		return err
	}, watchKinds...)
}

// formatEvent renders one event line.
func formatEvent(ev *nogitv1.Event) string {
	at := output.MutedStyle.Render(ev.At.Local().Format("15:04:05"))
	switch ev.Kind {
	case nogitv1.EventCaptured:
		return fmt.Sprintf("%s %s %s", at, output.SuccessStyle.Render(ev.Message), output.IDStyle.Render(ev.ID))
	case nogitv1.EventPruned:
		return fmt.Sprintf("%s %s %s", at, output.WarningStyle.Render(ev.Message), strings.Join(ev.Removed, " "))
	default:
		return fmt.Sprintf("%s %s %s", at, ev.Kind, ev.Message)
	}
}
