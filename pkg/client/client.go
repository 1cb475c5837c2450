// Package client connects to a workspace's nogitd daemon. It wraps the gRPC
// client and manages the daemon process.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/daemon"
	"github.com/jamesainslie/nogit/pkg/nogit/config"
	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

// ErrNotRunning is returned when no daemon serves the socket.
var ErrNotRunning = errors.New("daemon is not running")

// Client connects to nogitd via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	api    nogitv1.SnapshotsClient
	health healthpb.HealthClient
}

// DaemonPaths configures paths for daemon operations.
type DaemonPaths struct {
	Binary     string // Path to nogitd binary (auto-discovered if empty)
	Socket     string // Unix socket path
	PID        string // PID file path
	Workspace  string // Workspace passed to the daemon
	ConfigFile string // Config file passed to the daemon, if any
}

// PathsFor derives daemon paths from a loaded configuration.
func PathsFor(cfg *config.Config, configFile string) DaemonPaths {
	return DaemonPaths{
		Binary:     cfg.Daemon.BinaryPath,
		Socket:     cfg.SocketPath(),
		PID:        cfg.PIDPath(),
		Workspace:  cfg.Workspace,
		ConfigFile: configFile,
	}
}

// Connect establishes a connection to the daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext connects and waits until the daemon answers a health
// check.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: socket not found at %s", ErrNotRunning, socketPath)
	}

	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Client{
		conn:   conn,
		api:    nogitv1.NewSnapshotsClient(conn),
		health: healthpb.NewHealthClient(conn),
	}

	if err := c.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

// Ping checks that the daemon is serving.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: nogitv1.ServiceName}, grpc.WaitForReady(true))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotRunning, resp.GetStatus())
	}
	return nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SnapshotNow asks the daemon to capture immediately. The snapshot is nil
// when nothing was dirty.
func (c *Client) SnapshotNow(ctx context.Context) (*nogitv1.Snapshot, string, error) {
	resp, err := c.api.SnapshotNow(ctx, &nogitv1.SnapshotNowRequest{})
	if err != nil {
		return nil, "", fromStatus(err)
	}
	return resp.Snapshot, resp.Message, nil
}

// ListSnapshots returns all snapshots, newest first.
func (c *Client) ListSnapshots(ctx context.Context) ([]*nogitv1.Snapshot, error) {
	resp, err := c.api.ListSnapshots(ctx, &nogitv1.ListSnapshotsRequest{})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.Snapshots, nil
}

// ResolveSnapshotPath returns the stored copy of rel in snapshot id.
func (c *Client) ResolveSnapshotPath(ctx context.Context, id, rel string) (string, error) {
	resp, err := c.api.ResolveSnapshotPath(ctx, &nogitv1.ResolveSnapshotPathRequest{ID: id, Path: rel})
	if err != nil {
		return "", fromStatus(err)
	}
	return resp.Path, nil
}

// Prune applies retention. A max below 1 uses the daemon's configuration.
func (c *Client) Prune(ctx context.Context, maxSnapshots int) (*nogitv1.PruneResponse, error) {
	resp, err := c.api.Prune(ctx, &nogitv1.PruneRequest{Max: maxSnapshots})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp, nil
}

// RecordChanges notifies the daemon of changed files.
func (c *Client) RecordChanges(ctx context.Context, kind string, paths ...string) (int, error) {
	resp, err := c.api.RecordChanges(ctx, &nogitv1.RecordChangesRequest{Paths: paths, Kind: kind})
	if err != nil {
		return 0, fromStatus(err)
	}
	return resp.Recorded, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*nogitv1.Status, error) {
	resp, err := c.api.GetStatus(ctx, &nogitv1.GetStatusRequest{})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp, nil
}

// Shutdown requests a graceful daemon shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.api.Shutdown(ctx, &nogitv1.ShutdownRequest{})
	if err != nil {
		return fromStatus(err)
	}
	if !resp.Success {
		return errors.New("shutdown request rejected")
	}
	return nil
}

// WatchEvents calls fn for every snapshot event of the given kinds (all
// when none are given). It returns nil when ctx ends or the daemon closes
// the stream, and fn's error when fn fails.
func (c *Client) WatchEvents(ctx context.Context, fn func(*nogitv1.Event) error, kinds ...string) error {
	stream, err := c.api.WatchEvents(ctx, &nogitv1.WatchEventsRequest{Kinds: kinds})
	if err != nil {
		return fromStatus(err)
	}

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fromStatus(err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// fromStatus maps gRPC codes back to domain errors.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", snapshot.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", snapshot.ErrInvalidPath, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", snapshot.ErrNoWorkspace, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", snapshot.ErrManifestCorrupt, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrNotRunning, st.Message())
	default:
		return err
	}
}

// StartDaemon starts nogitd for the workspace in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find nogitd: %w", err)
	}

	statusPath := daemon.StatusPath(paths.Socket)
	_ = os.Remove(statusPath)

	args := []string{"--workspace", paths.Workspace}
	if paths.ConfigFile != "" {
		args = append(args, "--config", paths.ConfigFile)
	}

	// The daemon outlives this process, so no CommandContext.
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is validated
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return waitReady(statusPath, 5*time.Second)
}

// waitReady polls the startup status file.
func waitReady(statusPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)

		st, err := daemon.ReadStatus(statusPath)
		if err != nil {
			continue
		}
		switch st.Status {
		case daemon.StateReady:
			return nil
		case daemon.StateError:
			return fmt.Errorf("daemon failed to start: %s", st.Error)
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer c.Close()

	if err := c.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 40 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// resolveBinary finds the nogitd binary path.
// Priority: configured path > same directory as executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "nogitd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if goBinPath := config.DefaultBinaryPath(); goBinPath != "" {
		return goBinPath, nil
	}

	if path, err := exec.LookPath("nogitd"); err == nil {
		return path, nil
	}

	return "", errors.New("nogitd not found")
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}
