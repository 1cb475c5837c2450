package snapshot

import "fmt"

// PruneResult reports what a prune removed.
type PruneResult struct {
	Removed []string
	Failed  []string
	Kept    int
}

// Prune removes the oldest snapshots until at most maxSnapshots remain.
// A directory that cannot be removed is logged and skipped; the store may
// exceed the limit until the next prune.
func (s *Store) Prune(maxSnapshots int) (*PruneResult, error) {
	if maxSnapshots < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetention, maxSnapshots)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}

	excess := max(0, len(ids)-maxSnapshots)
	result := &PruneResult{}

	for _, id := range ids[:excess] {
		if err := s.fs.RemoveAll(s.Dir(id)); err != nil {
			s.pruneLg.Warn("failed to remove snapshot", "id", id, "error", err)
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Removed = append(result.Removed, id)
	}

	result.Kept = len(ids) - len(result.Removed)

	if len(result.Removed) > 0 {
		s.pruneLg.Info("pruned snapshots", "removed", len(result.Removed), "kept", result.Kept)
	}

	return result, nil
}
