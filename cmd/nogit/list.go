package main

import (
	"bytes"
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/nogit/output"
	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

var (
	listFormat  string
	listVerbose bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List snapshots, newest first",
	RunE:    runList,
}

func init() {
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format: table, plain, json, yaml")
	listCmd.Flags().BoolVar(&listVerbose, "files", false, "list the files of every snapshot")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	formatter, err := output.Get(listFormat)
	if err != nil {
		return err
	}

	result, err := buildListing(cmd.Context())
	if err != nil {
		return err
	}
	result.Verbose = listVerbose

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return err
	}
	_, err = stdout.Write(buf.Bytes())
	return err
}

// buildListing reads the store directly and asks a running daemon for the
// files it has not captured yet.
func buildListing(ctx context.Context) (*output.Result, error) {
	store := snapshot.New(cfg.Workspace, cfg.FolderName)

	records, err := store.List()
	if err != nil {
		return nil, err
	}

	result := &output.Result{
		Workspace: cfg.Workspace,
		Root:      store.Root(),
		Snapshots: make([]output.SnapshotInfo, 0, len(records)),
	}
	for _, rec := range records {
		size, err := store.Usage(rec.Timestamp)
		if err != nil {
			printVerbose("size of %s: %v", rec.Timestamp, err)
		}
		result.Snapshots = append(result.Snapshots, output.NewSnapshotInfo(rec, store.Dir(rec.Timestamp), size))
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		printVerbose("daemon status unavailable: %v", err)
		return result, nil
	}
	if c == nil {
		return result, nil
	}
	defer c.Close() //nolint:errcheck // best effort

	st, err := c.Status(ctx)
	if err != nil {
		printVerbose("daemon status unavailable: %v", err)
		return result, nil
	}
	result.DaemonUp = true
	result.Pending = st.Pending
	return result, nil
}
