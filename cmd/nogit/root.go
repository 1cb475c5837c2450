package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/client"
	"github.com/jamesainslie/nogit/pkg/nogit/config"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

var (
	cfgFile  string
	verbose  bool
	quiet    bool
	noDaemon bool

	// loader and cfg are set by loadConfig before any command runs.
	loader *config.Loader
	cfg    *config.Config

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	rootCmd = &cobra.Command{
		Use:   "nogit",
		Short: "Timed file snapshots without version control",
		Long: `nogit keeps timestamped copies of the files you change in a workspace.

A per-workspace daemon (nogitd) watches for changes and copies modified
files into <workspace>/.nogit/snapshots/<timestamp>/ on a timer, keeping the
newest snapshots and pruning the rest.

Examples:
  nogit daemon start             # Start watching the current directory
  nogit snapshot                 # Capture changed files now
  nogit snapshot notes.md        # Capture specific files now
  nogit list                     # Show snapshots, newest first
  nogit path 20240101-120000 notes.md
  nogit prune --max 10`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/nogit/config.yaml)")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "work on the snapshot store directly")
}

// loadConfig reads configuration and initializes logging.
func loadConfig(cmd *cobra.Command, _ []string) error {
	loader = config.NewLoader(cfgFile)
	if err := loader.Viper().BindPFlag("workspace", cmd.Flags().Lookup("workspace")); err != nil {
		return err
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	logCfg, err := cfg.LoggingOptions()
	if err != nil {
		return err
	}
	if verbose {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		// Logging is best effort for the CLI.
		printVerbose("logging disabled: %v", err)
	}

	printVerbose("workspace %s", cfg.Workspace)
	if used := loader.ConfigFileUsed(); used != "" {
		printVerbose("config file %s", used)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close() //nolint:errcheck // best effort
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

// daemonPaths returns the daemon paths for the loaded configuration.
func daemonPaths() client.DaemonPaths {
	return client.PathsFor(cfg, loader.ConfigFileUsed())
}

// connectDaemon returns a client when a daemon serves the workspace. It
// returns nil without error when there is none or --no-daemon is set.
func connectDaemon(ctx context.Context) (*client.Client, error) {
	if noDaemon {
		return nil, nil
	}

	paths := daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		printVerbose("no daemon for %s", cfg.Workspace)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if errors.Is(err, client.ErrNotRunning) {
		printVerbose("daemon not responding: %v", err)
		return nil, nil
	}
	return c, err
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(stdout, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
}
