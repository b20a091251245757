package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"installflow/internal/apperr"
	"installflow/internal/model"
)

// writeError maps the error taxonomy onto status codes. Unexpected errors
// keep their diagnostic detail; operators read it off the response when
// chasing incidents.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  kind.String(),
	})
}

type projectResponse struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	Branch       string     `json:"branch"`
	ClientName   string     `json:"client_name"`
	ClientPhone  string     `json:"client_phone"`
	ClientEmail  string     `json:"client_email"`
	Address      string     `json:"address"`
	ServiceType  string     `json:"service_type"`
	Value        float64    `json:"value"`
	CurrentStage int        `json:"current_stage"`
	InstallerID  string     `json:"installer_id"`

	MeasuredAt        *time.Time `json:"measured_at,omitempty"`
	QuotedAt          *time.Time `json:"quoted_at,omitempty"`
	ContractSignedAt  *time.Time `json:"contract_signed_at,omitempty"`
	MaterialOrderedAt *time.Time `json:"material_ordered_at,omitempty"`
	MaterialArrivedAt *time.Time `json:"material_arrived_at,omitempty"`
	InstallationAt    *time.Time `json:"installation_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
	Version   int       `json:"version"`
}

func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ID:                p.ID,
		OrgID:             p.OrgID,
		Branch:            p.Branch,
		ClientName:        p.ClientName,
		ClientPhone:       p.ClientPhone,
		ClientEmail:       p.ClientEmail,
		Address:           p.Address,
		ServiceType:       p.ServiceType,
		Value:             p.Value,
		CurrentStage:      p.CurrentStage,
		InstallerID:       p.InstallerID,
		MeasuredAt:        p.MeasuredAt,
		QuotedAt:          p.QuotedAt,
		ContractSignedAt:  p.ContractSignedAt,
		MaterialOrderedAt: p.MaterialOrderedAt,
		MaterialArrivedAt: p.MaterialArrivedAt,
		InstallationAt:    p.InstallationAt,
		CompletedAt:       p.CompletedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		Active:            p.Active,
		Version:           p.Version,
	}
}

type activityResponse struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	UserID      string         `json:"user_id"`
	Action      string         `json:"action"`
	FromStage   int            `json:"from_stage"`
	ToStage     int            `json:"to_stage"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toActivityResponse(rec *model.ActivityRecord) activityResponse {
	return activityResponse{
		ID:          rec.ID,
		ProjectID:   rec.ProjectID,
		UserID:      rec.UserID,
		Action:      rec.Action,
		FromStage:   rec.FromStage,
		ToStage:     rec.ToStage,
		Description: rec.Description,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
	}
}
