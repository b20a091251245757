package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"installflow/internal/apperr"
	"installflow/internal/service"
)

type StageHandler struct {
	transitions *service.TransitionService
	projects    service.ProjectStore
}

func NewStageHandler(transitions *service.TransitionService, projects service.ProjectStore) *StageHandler {
	return &StageHandler{
		transitions: transitions,
		projects:    projects,
	}
}

type changeStageRequest struct {
	// NewStage is a pointer so a missing field is distinguishable from 0;
	// both are rejected, but with a clear message.
	NewStage         *int           `json:"new_stage"`
	Metadata         map[string]any `json:"metadata"`
	SendNotification *bool          `json:"send_notification"`
}

// ChangeStage handles PATCH /projects/:id/stage.
func (h *StageHandler) ChangeStage(c *gin.Context) {
	var req changeStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if req.NewStage == nil {
		writeError(c, apperr.Validation("new_stage is required"))
		return
	}

	projectID := c.Param("id")

	// Cross-org access reads as NotFound, same as the CRUD endpoints.
	p, err := h.projects.FindByID(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	if p.OrgID != c.GetString("org_id") {
		writeError(c, apperr.NotFound("project %s not found", projectID))
		return
	}

	result, err := h.transitions.Transition(c.Request.Context(), service.TransitionInput{
		ProjectID:        projectID,
		NewStage:         *req.NewStage,
		UserID:           c.GetString("user_id"),
		Metadata:         req.Metadata,
		SendNotification: req.SendNotification,
		Method:           "api",
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"project": toProjectResponse(result.Project),
		"stage_change": gin.H{
			"from": result.FromStage,
			"to":   result.ToStage,
		},
	}
	if result.Notification != nil {
		resp["notification"] = result.Notification
	} else {
		resp["notification"] = nil
	}

	c.JSON(http.StatusOK, resp)
}
