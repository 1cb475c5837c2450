package nogitv1

import "time"

// Snapshot describes one stored snapshot.
type Snapshot struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
	Dir   string   `json:"dir,omitempty"`
	Size  int64    `json:"size,omitempty"`
}

type SnapshotNowRequest struct{}

// SnapshotNowResponse carries the new snapshot; Snapshot is nil when
// nothing was dirty.
type SnapshotNowResponse struct {
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Message  string    `json:"message,omitempty"`
}

type ListSnapshotsRequest struct{}

type ListSnapshotsResponse struct {
	Snapshots []*Snapshot `json:"snapshots"`
}

type ResolveSnapshotPathRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type ResolveSnapshotPathResponse struct {
	Path string `json:"path"`
}

// PruneRequest applies retention; Max below 1 uses the configured limit.
type PruneRequest struct {
	Max int `json:"max,omitempty"`
}

type PruneResponse struct {
	Removed []string `json:"removed"`
	Failed  []string `json:"failed,omitempty"`
	Kept    int      `json:"kept"`
}

// Change kinds for RecordChangesRequest.
const (
	KindModified = "modified"
	KindSaved    = "saved"
)

type RecordChangesRequest struct {
	Paths []string `json:"paths"`
	Kind  string   `json:"kind"`
}

type RecordChangesResponse struct {
	Recorded int `json:"recorded"`
}

type GetStatusRequest struct{}

// Status reports daemon and capture state.
type Status struct {
	InstanceID    string    `json:"instance_id"`
	PID           int       `json:"pid"`
	Workspace     string    `json:"workspace"`
	State         string    `json:"state"`
	Interval      string    `json:"interval,omitempty"`
	NextTick      time.Time `json:"next_tick,omitzero"`
	Dirty         int       `json:"dirty"`
	Pending       []string  `json:"pending,omitempty"`
	Watched       int       `json:"watched"`
	Subscribers   int       `json:"subscribers"`
	LastSnapshot  string    `json:"last_snapshot,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
	Captures      int64     `json:"captures"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	MemoryBytes   int64     `json:"memory_bytes"`
}

type ShutdownRequest struct{}

type ShutdownResponse struct {
	Success bool `json:"success"`
}

// Event kinds for WatchEvents.
const (
	EventCaptured = "captured"
	EventPruned   = "pruned"
)

// WatchEventsRequest selects event kinds; empty means all.
type WatchEventsRequest struct {
	Kinds []string `json:"kinds,omitempty"`
}

// Event is one streamed snapshot event.
type Event struct {
	Kind    string    `json:"kind"`
	ID      string    `json:"id,omitempty"`
	Files   int       `json:"files,omitempty"`
	Removed []string  `json:"removed,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}
