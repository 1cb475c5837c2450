package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// Config holds server configuration.
type Config struct {
	SocketPath string
	DataDir    string
}

// Server serves the Snapshots and health services on a unix socket.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer listens on cfg.SocketPath, replacing any stale socket file.
// The socket is only accessible to the current user.
func NewServer(cfg Config, svc nogitv1.SnapshotsServer) (*Server, error) {
	for _, dir := range []string{cfg.DataDir, filepath.Dir(cfg.SocketPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(cfg.SocketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restricting socket: %w", err)
	}

	srv := &Server{
		cfg:      cfg,
		grpc:     grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls(logging.Get("rpc")))),
		health:   health.NewServer(),
		listener: listener,
	}

	nogitv1.RegisterSnapshotsServer(srv.grpc, svc)
	healthpb.RegisterHealthServer(srv.grpc, srv.health)
	srv.health.SetServingStatus(nogitv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, nil
}

// logCalls logs every unary call at debug and failures at warn.
func logCalls(log *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("call failed", "method", info.FullMethod, "code", status.Code(err).String(), "error", err)
		} else {
			log.Debug("call", "method", info.FullMethod, "elapsed", time.Since(start))
		}
		return resp, err
	}
}

// Serve blocks until the server stops.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.listener)
}

// Close reports NOT_SERVING, drains in-flight calls and removes the socket.
func (s *Server) Close() error {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	return os.RemoveAll(s.cfg.SocketPath)
}
