// Package daemon implements nogitd: a per-workspace process that tracks
// changes with a filesystem watcher, captures snapshots on a schedule and
// serves the nogit.v1 API on a unix socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jamesainslie/nogit/pkg/daemon/journal"
	"github.com/jamesainslie/nogit/pkg/daemon/watcher"
	"github.com/jamesainslie/nogit/pkg/nogit/config"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
	"github.com/jamesainslie/nogit/pkg/nogit/manager"
	"github.com/jamesainslie/nogit/pkg/nogit/metrics"
)

// closeTimeout bounds how long shutdown waits for an in-flight capture.
const closeTimeout = 30 * time.Second

// Run starts the daemon for cfg.Workspace and blocks until ctx is cancelled
// or a client requests shutdown. When loader is non-nil, config file changes
// are applied live.
func Run(ctx context.Context, cfg *config.Config, loader *config.Loader) error {
	socketPath := cfg.SocketPath()
	statusPath := StatusPath(socketPath)

	err := run(ctx, cfg, loader)
	// The status file belongs to the running daemon.
	if err != nil && !errors.Is(err, ErrDaemonAlreadyRunning) {
		_ = WriteStatusError(statusPath, err)
	}
	return err
}

func run(ctx context.Context, cfg *config.Config, loader *config.Loader) error {
	log := logging.Get("daemon")

	if cfg.Workspace == "" {
		return errors.New("no workspace configured")
	}
	info, err := os.Stat(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", cfg.Workspace)
	}

	dataDir := cfg.DataDir()
	socketPath := cfg.SocketPath()
	pidPath := cfg.PIDPath()
	statusPath := StatusPath(socketPath)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	if err := RecoverFromStaleDaemon(pidPath, socketPath, dataDir); err != nil {
		return err
	}

	lock, err := AcquireLock(LockPath(dataDir))
	if err != nil {
		return err
	}
	defer lock.Release() //nolint:errcheck // released on exit

	db, err := journal.Open(JournalPath(dataDir))
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer db.Close()
	ws := db.ForWorkspace(cfg.Workspace)

	var svc *Service
	mgr, err := manager.New(manager.SettingsFrom(cfg),
		manager.WithJournal(ws),
		manager.WithCaptureHook(func(ev manager.CaptureEvent) { svc.OnCapture(ev) }),
	)
	if err != nil {
		return err
	}
	svc = NewService(mgr, ws)
	log = log.With("instance", svc.InstanceID())

	w, err := watcher.New(cfg.Workspace, mgr)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		return fmt.Errorf("watching workspace: %w", err)
	}
	svc.SetWatchedFunc(w.Watched)

	srv, err := NewServer(Config{SocketPath: socketPath, DataDir: dataDir}, svc)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.SetShutdownFunc(cancel)

	go w.Run(ctx)

	if err := mgr.Start(); err != nil {
		_ = srv.Close()
		return err
	}

	if loader != nil {
		loader.Watch(func(next *config.Config, err error) {
			if err != nil {
				log.Warn("ignoring invalid config change", "error", err)
				return
			}
			if err := mgr.Reconfigure(ctx, manager.SettingsFrom(next)); err != nil {
				log.Warn("config change not applied", "error", err)
			}
		})
	}

	metricsSrv := startMetrics(cfg.Daemon.MetricsAddr, log)

	if err := WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer RemovePIDFile(pidPath) //nolint:errcheck // best effort
	if err := WriteStatusReady(statusPath, svc.InstanceID(), cfg.Workspace); err != nil {
		log.Warn("failed to write status file", "error", err)
	}
	defer RemoveStatus(statusPath) //nolint:errcheck // best effort

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	log.Info("nogitd started",
		"workspace", cfg.Workspace,
		"socket", socketPath,
		"watched_dirs", w.Watched(),
		"dirty", mgr.Status().Dirty)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info("shutting down")
	cancel()
	// End event streams first; a graceful stop waits for them.
	svc.Close()
	_ = srv.Close()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	if err := mgr.Close(closeCtx); err != nil {
		log.Error("capture did not finish before shutdown", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(closeCtx)
	}

	return serveErr
}

// startMetrics serves /metrics on addr. An empty addr disables it.
func startMetrics(addr string, log *logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("metrics enabled", "addr", addr)

	return srv
}
