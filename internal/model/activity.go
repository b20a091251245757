package model

import "time"

// Activity action kinds.
const (
	ActionStageChanged = "stage_changed"
)

// ActivityRecord is one append-only audit entry for a project. Records are
// never updated or deleted after insert.
type ActivityRecord struct {
	ID          string
	ProjectID   string
	UserID      string
	Action      string
	FromStage   int
	ToStage     int
	Description string
	// Metadata is an open string-keyed map so callers can attach arbitrary
	// audit context without schema changes.
	Metadata  map[string]any
	CreatedAt time.Time
}
