// Command nogitd is the per-workspace snapshot daemon. It is normally
// started by "nogit daemon start".
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/daemon"
	"github.com/jamesainslie/nogit/pkg/nogit/config"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

var (
	cfgFile string
	console string
)

var rootCmd = &cobra.Command{
	Use:           "nogitd",
	Short:         "Snapshot daemon for one workspace",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.Flags().StringP("workspace", "w", "", "workspace root (default: current directory)")
	rootCmd.Flags().StringVar(&console, "console", "", "also log to stderr at this level")
}

func run(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader(cfgFile)
	if err := loader.Viper().BindPFlag("workspace", cmd.Flags().Lookup("workspace")); err != nil {
		return err
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logCfg, err := cfg.LoggingOptions()
	if err != nil {
		return err
	}
	logCfg.ConsoleLevel = console
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close() //nolint:errcheck // best effort

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.Get("daemon")
	log.Info("nogitd starting", "workspace", cfg.Workspace, "socket", cfg.SocketPath())

	if err := daemon.Run(ctx, cfg, loader); err != nil {
		log.Error("daemon exited", "error", err)
		return err
	}
	log.Info("nogitd stopped")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "nogitd is already running for this workspace")
		} else {
			fmt.Fprintf(os.Stderr, "nogitd: %v\n", err)
		}
		os.Exit(1)
	}
}
