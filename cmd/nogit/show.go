package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the files captured in a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(_ *cobra.Command, args []string) error {
	store := snapshot.New(cfg.Workspace, cfg.FolderName)

	id := args[0]
	if id == "latest" {
		rec, err := store.Latest()
		if err != nil {
			return err
		}
		id = rec.Timestamp
	}

	rec, err := store.Get(id)
	if err != nil {
		return err
	}
	size, err := store.Usage(id)
	if err != nil {
		printVerbose("size of %s: %v", id, err)
	}

	if !quiet {
		printInfo("Snapshot:  %s", rec.Timestamp)
		if ts, _, err := snapshot.ParseID(rec.Timestamp); err == nil {
			printInfo("Taken:     %s (%s)", ts.Format("2006-01-02 15:04:05"), humanize.Time(ts))
		}
		printInfo("Directory: %s", store.Dir(id))
		printInfo("Size:      %s", humanize.IBytes(uint64(size)))
		printInfo("Files:     %d", len(rec.Files))
		printInfo("")
	}
	for _, f := range rec.Files {
		if _, err := stdout.Write([]byte(f + "\n")); err != nil {
			return err
		}
	}
	return nil
}
