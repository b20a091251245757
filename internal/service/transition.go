package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"installflow/internal/apperr"
	"installflow/internal/model"
	"installflow/internal/stage"
	"installflow/pkg/metrics"
)

// TransitionService is the single write path for a project's current stage.
// It validates the requested stage, applies it with an optimistic version
// check, appends one audit record, and dispatches a best-effort notification
// after the write has committed.
type TransitionService struct {
	projects ProjectStore
	activity ActivityStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewTransitionService(projects ProjectStore, activity ActivityStore, notifier Notifier, logger *zap.Logger) *TransitionService {
	return &TransitionService{
		projects: projects,
		activity: activity,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type TransitionInput struct {
	ProjectID string
	NewStage  int
	UserID    string
	// Metadata is merged into the audit record alongside updated_by /
	// updated_at / method.
	Metadata map[string]any
	// SendNotification defaults to true when nil.
	SendNotification *bool
	// Method records how the transition was initiated, e.g. "api" or
	// "auto_advance".
	Method string
}

// NotificationOutcome is the sub-result of the post-commit dispatch. A failed
// dispatch never affects the committed transition.
type NotificationOutcome struct {
	Sent      bool   `json:"sent"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type TransitionResult struct {
	Project   *model.Project
	FromStage int
	ToStage   int
	// Notification is nil when dispatch was not requested.
	Notification *NotificationOutcome
}

// Transition moves a project to the requested stage. Any of the 12 stages is
// reachable from any other, including the current one: re-asserting the same
// stage is accepted and still audited, so manual corrections leave a trail.
func (s *TransitionService) Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	if !stage.Valid(in.NewStage) {
		metrics.TransitionCount.WithLabelValues("validation").Inc()
		return nil, apperr.Validation("stage must be between %d and %d, got %d", stage.First, stage.Last, in.NewStage)
	}

	p, err := s.projects.FindByID(ctx, in.ProjectID)
	if err != nil {
		metrics.TransitionCount.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}
	if !p.Active {
		metrics.TransitionCount.WithLabelValues("not_found").Inc()
		return nil, apperr.NotFound("project %s is inactive", in.ProjectID)
	}

	fromStage := p.CurrentStage
	now := s.now()

	// Single attempt against the version we read. A concurrent transition
	// bumps the version and this write surfaces Conflict; the caller
	// retries from a fresh read. The losing attempt writes nothing, so it
	// is not audited either.
	updated, err := s.projects.UpdateStage(ctx, p.ID, in.NewStage, p.Version, now)
	if err != nil {
		metrics.TransitionCount.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	metrics.TransitionCount.WithLabelValues("success").Inc()

	rec := &model.ActivityRecord{
		ID:          uuid.NewString(),
		ProjectID:   updated.ID,
		UserID:      in.UserID,
		Action:      model.ActionStageChanged,
		FromStage:   fromStage,
		ToStage:     in.NewStage,
		Description: fmt.Sprintf("stage %d -> %d", fromStage, in.NewStage),
		Metadata:    s.auditMetadata(in, now),
		CreatedAt:   now,
	}
	if err := s.activity.Insert(ctx, rec); err != nil {
		// The project write already committed. Losing one audit row is
		// preferable to rolling back a real stage change, so this is a
		// warning, not a failure.
		s.logger.Warn("activity log write failed after committed transition",
			zap.String("project_id", updated.ID),
			zap.Int("from_stage", fromStage),
			zap.Int("to_stage", in.NewStage),
			zap.Error(err),
		)
	}

	result := &TransitionResult{
		Project:   updated,
		FromStage: fromStage,
		ToStage:   in.NewStage,
	}

	if in.SendNotification == nil || *in.SendNotification {
		result.Notification = s.dispatch(ctx, updated, fromStage, in)
	} else {
		metrics.NotificationDispatchCount.WithLabelValues("skipped").Inc()
	}

	return result, nil
}

func (s *TransitionService) auditMetadata(in TransitionInput, now time.Time) map[string]any {
	meta := make(map[string]any, len(in.Metadata)+3)
	for k, v := range in.Metadata {
		meta[k] = v
	}
	meta["updated_by"] = in.UserID
	meta["updated_at"] = now.Format(time.RFC3339)
	method := in.Method
	if method == "" {
		method = "api"
	}
	meta["method"] = method
	return meta
}

func (s *TransitionService) dispatch(ctx context.Context, p *model.Project, fromStage int, in TransitionInput) *NotificationOutcome {
	res := s.notifier.NotifyStageChange(ctx, p, fromStage, in.NewStage, in.UserID)
	if !res.Sent {
		metrics.NotificationDispatchCount.WithLabelValues("failed").Inc()
		s.logger.Warn("notification dispatch failed",
			zap.String("project_id", p.ID),
			zap.Int("to_stage", in.NewStage),
			zap.Error(res.Err),
		)
		outcome := &NotificationOutcome{Sent: false}
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
		return outcome
	}

	metrics.NotificationDispatchCount.WithLabelValues("sent").Inc()
	return &NotificationOutcome{Sent: true, MessageID: res.MessageID}
}
