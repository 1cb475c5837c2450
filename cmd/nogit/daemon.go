package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the workspace daemon",
	Long: `Manage nogitd, the per-workspace daemon that watches for changes and
captures snapshots on a timer. Each workspace runs its own daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon for the workspace",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon for the workspace",
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon for the workspace",
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon already running for %s", paths.Workspace)
		return nil
	}

	printVerbose("starting daemon, socket %s", paths.Socket)
	if err := client.StartDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon started for %s", paths.Workspace)
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		return fmt.Errorf("no daemon running for %s", paths.Workspace)
	}

	printVerbose("stopping daemon, pid file %s", paths.PID)
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if err := client.StopDaemon(paths); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	if err := client.StartDaemon(paths); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	printInfo("Daemon restarted for %s", paths.Workspace)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}
	defer c.Close() //nolint:errcheck // best effort

	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("Daemon status: running")
	printInfo("  Workspace: %s", st.Workspace)
	printInfo("  PID:       %d", st.PID)
	printInfo("  Uptime:    %s", formatDuration(time.Duration(st.UptimeSeconds)*time.Second))
	printInfo("  Memory:    %s", humanize.IBytes(uint64(st.MemoryBytes)))
	printInfo("  Scheduler: %s", st.State)
	if st.Interval != "" {
		printInfo("  Interval:  %s", st.Interval)
	}
	if !st.NextTick.IsZero() {
		printInfo("  Next:      %s", humanize.Time(st.NextTick))
	}
	printInfo("  Watching:  %d directories", st.Watched)
	printInfo("  Pending:   %d files", st.Dirty)
	printInfo("  Captures:  %d", st.Captures)
	if st.LastSnapshot != "" {
		printInfo("  Last:      %s (%s)", st.LastSnapshot, st.LastMessage)
	}
	for _, p := range st.Pending {
		printVerbose("pending %s", p)
	}
	return nil
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
