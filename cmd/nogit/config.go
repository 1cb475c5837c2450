package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/nogit/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage nogit configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/nogit/config.yaml (if set)
  2. ~/.config/nogit/config.yaml

Environment variables override the file using the NOGIT_ prefix:
  NOGIT_ENABLE=false
  NOGIT_SNAPSHOT_INTERVAL_MINUTES=10
  NOGIT_MAX_SNAPSHOTS=50`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if used := loader.ConfigFileUsed(); used != "" {
		fmt.Fprintf(stdout, "Config file: %s\n\n", used)
	} else {
		fmt.Fprintln(stdout, "Config file: (using defaults, no file found)")
		fmt.Fprintln(stdout)
	}

	fmt.Fprintln(stdout, "Current Configuration:")
	fmt.Fprintln(stdout, "----------------------")
	fmt.Fprintf(stdout, "workspace:                 %s\n", cfg.Workspace)
	fmt.Fprintf(stdout, "enable:                    %t\n", cfg.Enable)
	fmt.Fprintf(stdout, "snapshot_interval_minutes: %d\n", cfg.IntervalMinutes)
	fmt.Fprintf(stdout, "max_snapshots:             %d\n", cfg.MaxSnapshots)
	fmt.Fprintf(stdout, "snapshot_folder_name:      %s\n", cfg.FolderName)
	fmt.Fprintf(stdout, "exclude:                   %v\n", cfg.Exclude)
	fmt.Fprintf(stdout, "exclude_patterns:          %v\n", cfg.ExcludePatterns)
	fmt.Fprintf(stdout, "logging.level:             %s\n", cfg.Logging.Level)
	fmt.Fprintf(stdout, "daemon.socket:             %s\n", cfg.SocketPath())
	fmt.Fprintf(stdout, "daemon.metrics_addr:       %s\n", cfg.Daemon.MetricsAddr)

	fmt.Fprintln(stdout, "\nEnvironment Overrides:")
	fmt.Fprintln(stdout, "----------------------")
	overrides := envOverrides(os.Environ())
	if len(overrides) == 0 {
		fmt.Fprintln(stdout, "(none)")
	}
	for _, kv := range overrides {
		fmt.Fprintln(stdout, kv)
	}
	return nil
}

// envOverrides returns the NOGIT_ variables from env.
func envOverrides(env []string) []string {
	var out []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "NOGIT_") {
			out = append(out, kv)
		}
	}
	return out
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		return nil
	}

	path, err = config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	path := loader.ConfigFileUsed()
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	fmt.Fprintln(stdout, path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		printVerbose("file does not exist (defaults apply)")
	}
	return nil
}
