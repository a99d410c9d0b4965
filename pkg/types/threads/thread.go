package threads

import "time"

// Thread is the metadata row for one conversation. CanonicalID is stable
// across the compaction chain: for uncompacted threads it equals ID, for
// compacted successors it carries the original thread's canonical id so
// external references survive compaction.
type Thread struct {
	ID          string    `json:"id" db:"id"`
	CanonicalID string    `json:"canonical_id" db:"canonical_id"`
	ParentID    *string   `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsDelegate reports whether the thread was spawned as a delegation child.
func (t *Thread) IsDelegate() bool {
	return t.ParentID != nil
}
