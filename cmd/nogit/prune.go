package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

var pruneMax int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove the oldest snapshots beyond the retention limit",
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneMax, "max", 0, "snapshots to keep (default: max_snapshots from config)")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, _ []string) error {
	limit := pruneMax
	if limit < 1 {
		limit = cfg.Retention()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	var removed, failed []string
	var kept int

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Close() //nolint:errcheck // best effort
		resp, err := c.Prune(ctx, limit)
		if err != nil {
			return err
		}
		removed, failed, kept = resp.Removed, resp.Failed, resp.Kept
	} else {
		result, err := snapshot.New(cfg.Workspace, cfg.FolderName).Prune(limit)
		if err != nil {
			return err
		}
		removed, failed, kept = result.Removed, result.Failed, result.Kept
	}

	for _, id := range removed {
		printVerbose("removed %s", id)
	}
	for _, id := range failed {
		printError("could not remove %s", id)
	}
	printInfo("Removed %d snapshots, %d kept", len(removed), kept)
	return nil
}
