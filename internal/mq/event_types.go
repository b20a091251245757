package mq

import "time"

// Routing keys on the pipeline.events exchange.
const (
	RoutingStageChanged = "project.stage_changed"
	RoutingReminderDue  = "project.reminder_due"
)

// StageChangedPayload is published after a transition commits. The external
// notification services (email/SMS/chat) consume it.
type StageChangedPayload struct {
	MessageID string    `json:"message_id"`
	ProjectID string    `json:"project_id"`
	OrgID     string    `json:"org_id"`
	FromStage int       `json:"from_stage"`
	ToStage   int       `json:"to_stage"`
	UpdatedBy string    `json:"updated_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// ReminderDuePayload is produced by the external scheduler when a project has
// sat in a reminder-bearing stage for its configured interval.
type ReminderDuePayload struct {
	ReminderID string    `json:"reminder_id"`
	ProjectID  string    `json:"project_id"`
	Stage      int       `json:"stage"`
	DueAt      time.Time `json:"due_at"`
}
