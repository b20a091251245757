package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"installflow/internal/apperr"
	"installflow/internal/mq"
	"installflow/internal/service"
	"installflow/internal/stage"
	"installflow/pkg/metrics"
)

// Deduper drops redeliveries of already-processed events. Satisfied by
// util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// ReminderHandler reacts to project.reminder_due events from the external
// scheduler. Stages flagged auto-advance get pushed to the next stage through
// the coordinator; reminder-only stages are logged for the notification
// services to pick up.
type ReminderHandler struct {
	transitions *service.TransitionService
	projects    service.ProjectStore
	deduper     Deduper
	logger      *zap.Logger
}

func NewReminderHandler(transitions *service.TransitionService, projects service.ProjectStore, deduper Deduper, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{
		transitions: transitions,
		projects:    projects,
		deduper:     deduper,
		logger:      logger,
	}
}

// HandleReminderDue is idempotent per reminder ID: redeliveries after a crash
// or a slow ack are dropped by the deduper.
func (h *ReminderHandler) HandleReminderDue(ctx context.Context, raw json.RawMessage) error {
	var p mq.ReminderDuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// Malformed payloads would requeue forever; drop them.
		h.logger.Error("dropping malformed reminder event", zap.Error(err))
		metrics.ReminderProcessedCount.WithLabelValues("dropped").Inc()
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "reminder_due", p.ReminderID) {
		metrics.ReminderProcessedCount.WithLabelValues("duplicate").Inc()
		return nil
	}

	def, err := stage.Lookup(p.Stage)
	if err != nil {
		h.logger.Error("dropping reminder for unknown stage",
			zap.String("project_id", p.ProjectID),
			zap.Int("stage", p.Stage),
		)
		metrics.ReminderProcessedCount.WithLabelValues("dropped").Inc()
		return nil
	}

	project, err := h.projects.FindByID(ctx, p.ProjectID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			metrics.ReminderProcessedCount.WithLabelValues("dropped").Inc()
			return nil
		}
		h.deduper.Release(ctx, "reminder_due", p.ReminderID)
		metrics.ReminderProcessedCount.WithLabelValues("error").Inc()
		return err
	}
	if !project.Active || project.CurrentStage != p.Stage {
		// The project moved on (or was deactivated) after the reminder was
		// scheduled; the reminder is stale.
		metrics.ReminderProcessedCount.WithLabelValues("dropped").Inc()
		return nil
	}

	if !def.AutoAdvance || p.Stage >= stage.Last {
		h.logger.Info("reminder due",
			zap.String("project_id", p.ProjectID),
			zap.Int("stage", p.Stage),
			zap.String("stage_name", def.Name),
		)
		metrics.ReminderProcessedCount.WithLabelValues("reminded").Inc()
		return nil
	}

	_, err = h.transitions.Transition(ctx, service.TransitionInput{
		ProjectID: p.ProjectID,
		NewStage:  p.Stage + 1,
		UserID:    "scheduler",
		Method:    "auto_advance",
		Metadata:  map[string]any{"reminder_id": p.ReminderID},
	})
	switch {
	case err == nil:
		metrics.ReminderProcessedCount.WithLabelValues("advanced").Inc()
		return nil
	case apperr.IsKind(err, apperr.KindConflict):
		// Someone moved the project while we worked; requeue and let the
		// re-read decide whether the advance still applies. Free the dedup
		// key so the redelivery is not dropped as a duplicate.
		h.deduper.Release(ctx, "reminder_due", p.ReminderID)
		metrics.ReminderProcessedCount.WithLabelValues("error").Inc()
		return err
	case apperr.IsKind(err, apperr.KindNotFound):
		// Project deleted or deactivated since the reminder was scheduled.
		h.logger.Info("dropping reminder for missing project",
			zap.String("project_id", p.ProjectID),
		)
		metrics.ReminderProcessedCount.WithLabelValues("dropped").Inc()
		return nil
	default:
		h.deduper.Release(ctx, "reminder_due", p.ReminderID)
		metrics.ReminderProcessedCount.WithLabelValues("error").Inc()
		return err
	}
}
