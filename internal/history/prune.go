package history

import (
	"fmt"
)

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted Entries `json:"deleted" yaml:"deleted"`
	Kept    int     `json:"kept" yaml:"kept"`
}

func (r *PruneResult) String() string {
	return fmt.Sprintf("Pruned %d entries, kept %d", len(r.Deleted), r.Kept)
}

// Prune removes old entries, keeping only the most recent keep entries.
func (j *Journal) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	entries, err := j.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Deleted: Entries{}}

	// Entries are already sorted newest first.
	if len(entries) <= keep {
		result.Kept = len(entries)
		return result, nil
	}

	result.Kept = keep
	for _, entry := range entries[keep:] {
		if err := j.Delete(entry.ID); err != nil {
			return nil, fmt.Errorf("failed to delete history entry %s: %w", entry.ID, err)
		}
		result.Deleted = append(result.Deleted, entry)
	}

	return result, nil
}
