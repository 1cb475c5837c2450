package snapshot

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// IDLayout is the time layout of a snapshot ID. IDs sort lexicographically
// in chronological order.
const IDLayout = "20060102-150405"

// maxCollisions bounds the same-second suffixes .001 through .999.
const maxCollisions = 999

// NewID formats t in local time as a snapshot ID.
func NewID(t time.Time) string {
	return t.Local().Format(IDLayout)
}

// collisionID returns the n-th same-second variant of base. The fixed width
// suffix sorts after base and before the next second.
func collisionID(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s.%03d", base, n)
}

// ParseID parses a snapshot ID into its local capture time and collision
// sequence number.
func ParseID(id string) (time.Time, int, error) {
	base, suffix, hasSuffix := strings.Cut(id, ".")

	// Validate in UTC, which has no gaps, so a wall-clock time skipped by a
	// local DST change is still a valid ID.
	u, err := time.Parse(IDLayout, base)
	if err != nil || u.Format(IDLayout) != base {
		return time.Time{}, 0, fmt.Errorf("%w: malformed snapshot id %q", ErrInvalidPath, id)
	}
	t := time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, time.Local)

	if !hasSuffix {
		return t, 0, nil
	}

	n, err := strconv.Atoi(suffix)
	if err != nil || len(suffix) != 3 || n < 1 {
		return time.Time{}, 0, fmt.Errorf("%w: malformed snapshot id %q", ErrInvalidPath, id)
	}

	return t, n, nil
}

// ValidID reports whether id is a well-formed snapshot ID.
func ValidID(id string) bool {
	_, _, err := ParseID(id)
	return err == nil
}

// cleanRel normalizes a '/'-separated workspace-relative path and rejects
// paths that are absolute or escape the workspace.
func cleanRel(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, `\`, "/")
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}

	cleaned := path.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}

	return cleaned, nil
}
