package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"installflow/internal/apperr"
	"installflow/internal/model"
	"installflow/internal/repository"
	"installflow/internal/stage"
)

// ProjectRepo is the repository surface the CRUD handlers use.
type ProjectRepo interface {
	Create(ctx context.Context, p *model.Project) error
	FindByID(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context, f repository.ProjectFilter) ([]model.Project, error)
	Update(ctx context.Context, id string, patch repository.ProjectPatch) (*model.Project, error)
	Deactivate(ctx context.Context, id string) error
}

type ActivityRepo interface {
	ListByProject(ctx context.Context, projectID string) ([]model.ActivityRecord, error)
}

type ProjectHandler struct {
	projects ProjectRepo
	activity ActivityRepo
}

func NewProjectHandler(projects ProjectRepo, activity ActivityRepo) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		activity: activity,
	}
}

type createProjectRequest struct {
	Branch      string  `json:"branch"`
	ClientName  string  `json:"client_name" binding:"required"`
	ClientPhone string  `json:"client_phone"`
	ClientEmail string  `json:"client_email"`
	Address     string  `json:"address"`
	ServiceType string  `json:"service_type" binding:"required"`
	Value       float64 `json:"value"`
	InstallerID string  `json:"installer_id"`
	// CurrentStage is accepted but ignored: every project starts at stage 1.
	CurrentStage int `json:"current_stage"`
}

// CreateProject handles POST /projects.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	p := &model.Project{
		OrgID:       c.GetString("org_id"),
		Branch:      req.Branch,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		ClientEmail: req.ClientEmail,
		Address:     req.Address,
		ServiceType: req.ServiceType,
		Value:       req.Value,
		InstallerID: req.InstallerID,
	}
	if err := h.projects.Create(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": toProjectResponse(p)})
}

// ListProjects handles GET /projects with optional branch/installer/stage
// filters. Results are always scoped to the caller's organization.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	filter := repository.ProjectFilter{
		OrgID:       c.GetString("org_id"),
		Branch:      c.Query("branch"),
		InstallerID: c.Query("installer_id"),
	}

	if raw := c.Query("stage"); raw != "" {
		s, err := strconv.Atoi(raw)
		if err != nil || !stage.Valid(s) {
			writeError(c, apperr.Validation("invalid stage filter %q", raw))
			return
		}
		filter.Stage = &s
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}

	projects, err := h.projects.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, toProjectResponse(&projects[i]))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// GetProject handles GET /projects/:id.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.findScoped(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": toProjectResponse(p)})
}

type updateProjectRequest struct {
	Branch      *string  `json:"branch"`
	ClientName  *string  `json:"client_name"`
	ClientPhone *string  `json:"client_phone"`
	ClientEmail *string  `json:"client_email"`
	Address     *string  `json:"address"`
	ServiceType *string  `json:"service_type"`
	Value       *float64 `json:"value"`
	InstallerID *string  `json:"installer_id"`

	MeasuredAt        *time.Time `json:"measured_at"`
	QuotedAt          *time.Time `json:"quoted_at"`
	ContractSignedAt  *time.Time `json:"contract_signed_at"`
	MaterialOrderedAt *time.Time `json:"material_ordered_at"`
	MaterialArrivedAt *time.Time `json:"material_arrived_at"`
	InstallationAt    *time.Time `json:"installation_at"`
	CompletedAt       *time.Time `json:"completed_at"`
}

// UpdateProject handles PUT /projects/:id. The body is a partial patch; the
// current stage cannot be edited here, only through the stage endpoint.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	if _, err := h.findScoped(c); err != nil {
		writeError(c, err)
		return
	}

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	patch := repository.ProjectPatch{
		Branch:            req.Branch,
		ClientName:        req.ClientName,
		ClientPhone:       req.ClientPhone,
		ClientEmail:       req.ClientEmail,
		Address:           req.Address,
		ServiceType:       req.ServiceType,
		Value:             req.Value,
		InstallerID:       req.InstallerID,
		MeasuredAt:        req.MeasuredAt,
		QuotedAt:          req.QuotedAt,
		ContractSignedAt:  req.ContractSignedAt,
		MaterialOrderedAt: req.MaterialOrderedAt,
		MaterialArrivedAt: req.MaterialArrivedAt,
		InstallationAt:    req.InstallationAt,
		CompletedAt:       req.CompletedAt,
	}

	p, err := h.projects.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": toProjectResponse(p)})
}

// DeactivateProject handles DELETE /projects/:id. Projects are never hard
// deleted.
func (h *ProjectHandler) DeactivateProject(c *gin.Context) {
	if _, err := h.findScoped(c); err != nil {
		writeError(c, err)
		return
	}

	if err := h.projects.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListActivity handles GET /projects/:id/activity.
func (h *ProjectHandler) ListActivity(c *gin.Context) {
	if _, err := h.findScoped(c); err != nil {
		writeError(c, err)
		return
	}

	records, err := h.activity.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]activityResponse, 0, len(records))
	for i := range records {
		out = append(out, toActivityResponse(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{"activity": out})
}

// findScoped fetches the project and hides it behind NotFound when it belongs
// to a different organization.
func (h *ProjectHandler) findScoped(c *gin.Context) (*model.Project, error) {
	id := c.Param("id")
	p, err := h.projects.FindByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if p.OrgID != c.GetString("org_id") {
		return nil, apperr.NotFound("project %s not found", id)
	}
	return p, nil
}
