package snapshot

import "errors"

var (
	// ErrNoWorkspace is returned when no workspace root is known.
	ErrNoWorkspace = errors.New("no workspace")

	// ErrStoreIO is returned when the store root, a snapshot directory or a
	// manifest cannot be written. The capture did not happen.
	ErrStoreIO = errors.New("snapshot store unavailable")

	// ErrManifestCorrupt is returned for a snapshot whose manifest is missing
	// or cannot be parsed.
	ErrManifestCorrupt = errors.New("snapshot manifest corrupt")

	// ErrNotFound is returned when a snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidPath is returned for malformed snapshot IDs and for relative
	// paths that escape the workspace.
	ErrInvalidPath = errors.New("invalid snapshot path")

	// ErrInvalidRetention is returned when pruning with a limit below 1.
	ErrInvalidRetention = errors.New("max snapshots must be at least 1")
)
