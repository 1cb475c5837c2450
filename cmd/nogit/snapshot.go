package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/nogit/manager"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [files...]",
	Short: "Capture a snapshot now",
	Long: `Capture the workspace's changed files into a new snapshot immediately.

With a running daemon, the named files are added to its pending set and the
daemon captures everything pending. Without a daemon, only the named files
are captured and retention is applied afterwards.`,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	files, err := absPaths(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Close() //nolint:errcheck // best effort
		if len(files) > 0 {
			n, err := c.RecordChanges(ctx, nogitv1.KindSaved, files...)
			if err != nil {
				return err
			}
			printVerbose("daemon recorded %d of %d files", n, len(files))
		}
		snap, msg, err := c.SnapshotNow(ctx)
		if err != nil {
			return err
		}
		if snap == nil {
			printInfo("Nothing to snapshot")
			return nil
		}
		printInfo("%s", msg)
		printInfo("Snapshot %s", snap.ID)
		return nil
	}

	if len(files) == 0 {
		return fmt.Errorf("no daemon running for %s; name the files to capture or run 'nogit daemon start'", cfg.Workspace)
	}
	return snapshotInProcess(ctx, files)
}

// snapshotInProcess captures files without a daemon.
func snapshotInProcess(ctx context.Context, files []string) error {
	settings := manager.SettingsFrom(cfg)
	settings.Enable = false

	mgr, err := manager.New(settings)
	if err != nil {
		return err
	}
	defer mgr.Close(context.Background()) //nolint:errcheck // nothing scheduled

	recorded := 0
	for _, f := range files {
		if mgr.RecordSave(f) {
			recorded++
		} else {
			printVerbose("skipping %s", f)
		}
	}
	if recorded == 0 {
		printInfo("Nothing to snapshot")
		return nil
	}

	rec, err := mgr.SnapshotNow(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		printInfo("Nothing to snapshot")
		return nil
	}
	printInfo("noGit snapshot saved (%d files)", len(rec.Files))
	printInfo("Snapshot %s", rec.Timestamp)
	return nil
}

// absPaths makes command line paths absolute against the working directory.
func absPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
