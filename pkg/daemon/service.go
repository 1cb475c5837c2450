package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/daemon/broadcaster"
	"github.com/jamesainslie/nogit/pkg/daemon/journal"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
	"github.com/jamesainslie/nogit/pkg/nogit/manager"
	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

// Service implements the nogit.v1 Snapshots gRPC service on top of a
// manager.
type Service struct {
	nogitv1.UnimplementedSnapshotsServer

	mgr        *manager.Manager
	stats      *journal.Workspace
	events     *broadcaster.Broadcaster
	instanceID string
	startTime  time.Time

	mu       sync.Mutex
	watched  func() int
	shutdown func()
}

// NewService creates a service for mgr. stats may be nil.
func NewService(mgr *manager.Manager, stats *journal.Workspace) *Service {
	return &Service{
		mgr:        mgr,
		stats:      stats,
		events:     broadcaster.New(),
		instanceID: uuid.NewString(),
		startTime:  time.Now(),
	}
}

// InstanceID identifies this daemon run.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// SetWatchedFunc reports the number of watched directories in status.
func (s *Service) SetWatchedFunc(fn func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = fn
}

// SetShutdownFunc sets the function called by the Shutdown RPC.
func (s *Service) SetShutdownFunc(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = fn
}

// Close ends all event streams.
func (s *Service) Close() {
	s.events.Close()
}

// OnCapture is the manager capture hook.
func (s *Service) OnCapture(ev manager.CaptureEvent) {
	log := logging.Get("daemon")
	log.Info(ev.Message(), "id", ev.Record.Timestamp, "trigger", string(ev.Trigger))

	s.events.Publish(&broadcaster.Event{
		Kind:    broadcaster.KindCaptured,
		ID:      ev.Record.Timestamp,
		Files:   len(ev.Record.Files),
		Message: ev.Message(),
		At:      ev.At,
	})
	s.publishPruned(ev.Pruned)

	if s.stats == nil {
		return
	}
	if err := s.stats.RecordCapture(ev.Record.Timestamp, len(ev.Record.Files), ev.At); err != nil {
		log.Warn("failed to record capture stats", "error", err)
	}
}

// SnapshotNow captures the dirty set immediately.
func (s *Service) SnapshotNow(ctx context.Context, _ *nogitv1.SnapshotNowRequest) (*nogitv1.SnapshotNowResponse, error) {
	rec, err := s.mgr.SnapshotNow(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if rec == nil {
		return &nogitv1.SnapshotNowResponse{Message: "nothing to snapshot"}, nil
	}

	ev := manager.CaptureEvent{Record: *rec}
	return &nogitv1.SnapshotNowResponse{
		Snapshot: s.snapshot(rec, false),
		Message:  ev.Message(),
	}, nil
}

// ListSnapshots returns all snapshots, newest first.
func (s *Service) ListSnapshots(_ context.Context, _ *nogitv1.ListSnapshotsRequest) (*nogitv1.ListSnapshotsResponse, error) {
	recs, err := s.mgr.ListSnapshots()
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &nogitv1.ListSnapshotsResponse{Snapshots: make([]*nogitv1.Snapshot, 0, len(recs))}
	for i := range recs {
		resp.Snapshots = append(resp.Snapshots, s.snapshot(&recs[i], true))
	}
	return resp, nil
}

// ResolveSnapshotPath maps a workspace-relative path to its stored copy.
func (s *Service) ResolveSnapshotPath(_ context.Context, req *nogitv1.ResolveSnapshotPathRequest) (*nogitv1.ResolveSnapshotPathResponse, error) {
	path, err := s.mgr.ResolveSnapshotPath(req.ID, req.Path)
	if err != nil {
		return nil, toStatus(err)
	}
	return &nogitv1.ResolveSnapshotPathResponse{Path: path}, nil
}

// Prune applies retention immediately.
func (s *Service) Prune(ctx context.Context, req *nogitv1.PruneRequest) (*nogitv1.PruneResponse, error) {
	result, err := s.mgr.Prune(ctx, req.Max)
	if err != nil {
		return nil, toStatus(err)
	}
	s.publishPruned(result.Removed)
	return &nogitv1.PruneResponse{
		Removed: result.Removed,
		Failed:  result.Failed,
		Kept:    result.Kept,
	}, nil
}

// RecordChanges feeds host notifications to the tracker.
func (s *Service) RecordChanges(_ context.Context, req *nogitv1.RecordChangesRequest) (*nogitv1.RecordChangesResponse, error) {
	var record func(string) bool
	switch req.Kind {
	case nogitv1.KindModified, "":
		record = s.mgr.RecordChange
	case nogitv1.KindSaved:
		record = s.mgr.RecordSave
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown change kind %q", req.Kind)
	}

	resp := &nogitv1.RecordChangesResponse{}
	for _, p := range req.Paths {
		if record(p) {
			resp.Recorded++
		}
	}
	return resp, nil
}

// GetStatus returns daemon health information.
func (s *Service) GetStatus(_ context.Context, _ *nogitv1.GetStatusRequest) (*nogitv1.Status, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := s.mgr.Status()
	resp := &nogitv1.Status{
		InstanceID:    s.instanceID,
		PID:           os.Getpid(),
		Workspace:     st.Workspace,
		State:         st.State.String(),
		NextTick:      st.NextTick,
		Dirty:         st.Dirty,
		Pending:       st.Pending,
		Subscribers:   s.events.SubscriberCount(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:   int64(mem.Alloc),
	}
	if st.Interval > 0 {
		resp.Interval = st.Interval.String()
	}
	if st.LastCapture != nil {
		resp.LastSnapshot = st.LastCapture.Record.Timestamp
		resp.LastMessage = st.LastCapture.Message()
	}

	s.mu.Lock()
	watched := s.watched
	s.mu.Unlock()
	if watched != nil {
		resp.Watched = watched()
	}

	if s.stats != nil {
		if stats, err := s.stats.Stats(); err == nil {
			resp.Captures = stats.Captures
			if resp.LastSnapshot == "" {
				resp.LastSnapshot = stats.LastID
			}
		}
	}

	return resp, nil
}

// Shutdown gracefully shuts down the daemon.
func (s *Service) Shutdown(_ context.Context, _ *nogitv1.ShutdownRequest) (*nogitv1.ShutdownResponse, error) {
	s.mu.Lock()
	fn := s.shutdown
	s.mu.Unlock()

	if fn != nil {
		// Let the response go out before the server stops.
		go fn()
	}
	return &nogitv1.ShutdownResponse{Success: true}, nil
}

// WatchEvents streams snapshot events until the client goes away or the
// daemon shuts down.
func (s *Service) WatchEvents(req *nogitv1.WatchEventsRequest, stream nogitv1.Snapshots_WatchEventsServer) error {
	kinds := make([]broadcaster.Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		switch k {
		case nogitv1.EventCaptured, nogitv1.EventPruned:
			kinds = append(kinds, broadcaster.Kind(k))
		default:
			return status.Errorf(codes.InvalidArgument, "unknown event kind %q", k)
		}
	}

	sub := s.events.Subscribe(kinds...)
	if sub == nil {
		return status.Error(codes.Unavailable, "daemon shutting down")
	}
	defer s.events.Unsubscribe(sub.ID)

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := stream.Send(&nogitv1.Event{
				Kind:    string(ev.Kind),
				ID:      ev.ID,
				Files:   ev.Files,
				Removed: ev.Removed,
				Message: ev.Message,
				At:      ev.At,
			}); err != nil {
				return err
			}
		}
	}
}

func (s *Service) publishPruned(removed []string) {
	if len(removed) == 0 {
		return
	}
	s.events.Publish(&broadcaster.Event{
		Kind:    broadcaster.KindPruned,
		Removed: removed,
		Message: fmt.Sprintf("noGit pruned %d snapshots", len(removed)),
		At:      time.Now(),
	})
}

func (s *Service) snapshot(rec *snapshot.Record, withSize bool) *nogitv1.Snapshot {
	store := s.mgr.Store()
	out := &nogitv1.Snapshot{
		ID:    rec.Timestamp,
		Files: rec.Files,
		Dir:   store.Dir(rec.Timestamp),
	}
	if withSize {
		if size, err := store.Usage(rec.Timestamp); err == nil {
			out.Size = size
		}
	}
	return out
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, snapshot.ErrInvalidPath), errors.Is(err, snapshot.ErrInvalidRetention):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, snapshot.ErrNoWorkspace):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, snapshot.ErrManifestCorrupt):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, manager.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
