package service

import (
	"context"
	"time"

	"installflow/internal/model"
)

// ProjectStore is the slice of the project repository the services need.
// Keeping it an interface keeps the coordinator and aggregator
// storage-agnostic and lets tests swap in an in-memory store.
type ProjectStore interface {
	FindByID(ctx context.Context, id string) (*model.Project, error)
	// UpdateStage must apply the stage atomically against the version
	// counter and return Conflict on a stale expectedVersion.
	UpdateStage(ctx context.Context, id string, newStage, expectedVersion int, now time.Time) (*model.Project, error)
	ListActiveByOrg(ctx context.Context, orgID string) ([]model.Project, error)
}

// ActivityStore appends audit records. There is no way to mutate them.
type ActivityStore interface {
	Insert(ctx context.Context, rec *model.ActivityRecord) error
}

// NotifyResult is the outcome of one dispatch attempt.
type NotifyResult struct {
	Sent      bool
	MessageID string
	Err       error
}

// Notifier hands a committed stage change to the notification collaborator.
// Dispatch failures are reported in the result, never as a hard error: the
// stage change has already committed by the time this runs.
type Notifier interface {
	NotifyStageChange(ctx context.Context, p *model.Project, fromStage, toStage int, updatedBy string) NotifyResult
}
