package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"installflow/internal/apperr"
	"installflow/internal/model"
	"installflow/internal/stage"
	"installflow/pkg/metrics"
)

const projectColumns = `
        id, org_id, branch, client_name, client_phone, client_email, address,
        service_type, value, current_stage, installer_id,
        measured_at, quoted_at, contract_signed_at, material_ordered_at,
        material_arrived_at, installation_at, completed_at,
        created_at, updated_at, active, version
`

type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ProjectFilter narrows List results. Zero-valued fields are ignored.
type ProjectFilter struct {
	OrgID       string
	Branch      string
	InstallerID string
	Stage       *int
	Active      *bool
}

// ProjectPatch is a partial field update. Nil fields are left untouched.
// The current stage is deliberately absent: stage writes go through
// UpdateStage only.
type ProjectPatch struct {
	ClientName  *string
	ClientPhone *string
	ClientEmail *string
	Address     *string
	ServiceType *string
	Value       *float64
	Branch      *string
	InstallerID *string

	MeasuredAt        *time.Time
	QuotedAt          *time.Time
	ContractSignedAt  *time.Time
	MaterialOrderedAt *time.Time
	MaterialArrivedAt *time.Time
	InstallationAt    *time.Time
	CompletedAt       *time.Time
}

// Create inserts a new project. The caller's stage is ignored: every project
// enters the pipeline at stage 1.
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("insert", "projects", time.Since(start))

	p.ID = uuid.NewString()
	p.CurrentStage = stage.First
	p.Active = true
	p.Version = 1
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
        INSERT INTO projects (
            id, org_id, branch, client_name, client_phone, client_email,
            address, service_type, value, current_stage, installer_id,
            created_at, updated_at, active, version
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    `
	_, err := r.db.Exec(ctx, query,
		p.ID, p.OrgID, p.Branch, p.ClientName, p.ClientPhone, p.ClientEmail,
		p.Address, p.ServiceType, p.Value, p.CurrentStage, p.InstallerID,
		p.CreatedAt, p.UpdatedAt, p.Active, p.Version,
	)
	if err != nil {
		return apperr.Unexpected("failed to insert project", err)
	}
	return nil
}

// FindByID returns a project regardless of its active flag; callers that only
// accept live projects check Active themselves.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("select", "projects", time.Since(start))

	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("project %s not found", id)
		}
		return nil, apperr.Unexpected("failed to fetch project", err)
	}
	return p, nil
}

// List returns projects matching the filter, newest first.
func (r *ProjectRepository) List(ctx context.Context, f ProjectFilter) ([]model.Project, error) {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("select", "projects", time.Since(start))

	where := []string{"1=1"}
	args := []any{}

	add := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.OrgID != "" {
		add("org_id = $%d", f.OrgID)
	}
	if f.Branch != "" {
		add("branch = $%d", f.Branch)
	}
	if f.InstallerID != "" {
		add("installer_id = $%d", f.InstallerID)
	}
	if f.Stage != nil {
		add("current_stage = $%d", *f.Stage)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Unexpected("failed to list projects", err)
	}
	defer rows.Close()

	return collectProjects(rows)
}

// ListActiveByOrg returns every live project for an organization, all stages
// included; the KPI aggregator needs completed projects for the completion
// rate.
func (r *ProjectRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]model.Project, error) {
	active := true
	return r.List(ctx, ProjectFilter{OrgID: orgID, Active: &active})
}

// Update applies a partial patch and refreshes updated_at. It never touches
// current_stage or version.
func (r *ProjectRepository) Update(ctx context.Context, id string, patch ProjectPatch) (*model.Project, error) {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("update", "projects", time.Since(start))

	sets := []string{}
	args := []any{}

	set := func(column string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ClientName != nil {
		set("client_name", *patch.ClientName)
	}
	if patch.ClientPhone != nil {
		set("client_phone", *patch.ClientPhone)
	}
	if patch.ClientEmail != nil {
		set("client_email", *patch.ClientEmail)
	}
	if patch.Address != nil {
		set("address", *patch.Address)
	}
	if patch.ServiceType != nil {
		set("service_type", *patch.ServiceType)
	}
	if patch.Value != nil {
		set("value", *patch.Value)
	}
	if patch.Branch != nil {
		set("branch", *patch.Branch)
	}
	if patch.InstallerID != nil {
		set("installer_id", *patch.InstallerID)
	}
	if patch.MeasuredAt != nil {
		set("measured_at", *patch.MeasuredAt)
	}
	if patch.QuotedAt != nil {
		set("quoted_at", *patch.QuotedAt)
	}
	if patch.ContractSignedAt != nil {
		set("contract_signed_at", *patch.ContractSignedAt)
	}
	if patch.MaterialOrderedAt != nil {
		set("material_ordered_at", *patch.MaterialOrderedAt)
	}
	if patch.MaterialArrivedAt != nil {
		set("material_arrived_at", *patch.MaterialArrivedAt)
	}
	if patch.InstallationAt != nil {
		set("installation_at", *patch.InstallationAt)
	}
	if patch.CompletedAt != nil {
		set("completed_at", *patch.CompletedAt)
	}

	set("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE projects SET %s WHERE id = $%d RETURNING `+projectColumns,
		strings.Join(sets, ", "), len(args),
	)

	p, err := scanProject(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("project %s not found", id)
		}
		return nil, apperr.Unexpected("failed to update project", err)
	}
	return p, nil
}

// UpdateStage moves a live project to the given stage iff its version still
// matches expectedVersion. A version mismatch means a concurrent transition
// landed first and surfaces as Conflict; the caller retries from a fresh read.
func (r *ProjectRepository) UpdateStage(ctx context.Context, id string, newStage, expectedVersion int, now time.Time) (*model.Project, error) {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("update", "projects", time.Since(start))

	query := `
        UPDATE projects
        SET current_stage = $1, updated_at = $2, version = version + 1
        WHERE id = $3 AND version = $4 AND active = TRUE
        RETURNING ` + projectColumns

	p, err := scanProject(r.db.QueryRow(ctx, query, newStage, now, id, expectedVersion))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Unexpected("failed to update project stage", err)
	}

	// No row matched: distinguish a stale version from a missing or
	// deactivated project.
	existing, ferr := r.FindByID(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	if !existing.Active {
		return nil, apperr.NotFound("project %s is inactive", id)
	}
	return nil, apperr.Conflict("project %s was modified concurrently", id)
}

// Deactivate soft-deletes a project. Rows are never removed.
func (r *ProjectRepository) Deactivate(ctx context.Context, id string) error {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("update", "projects", time.Since(start))

	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return apperr.Unexpected("failed to deactivate project", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("project %s not found", id)
	}
	return nil
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID, &p.OrgID, &p.Branch, &p.ClientName, &p.ClientPhone,
		&p.ClientEmail, &p.Address, &p.ServiceType, &p.Value,
		&p.CurrentStage, &p.InstallerID,
		&p.MeasuredAt, &p.QuotedAt, &p.ContractSignedAt, &p.MaterialOrderedAt,
		&p.MaterialArrivedAt, &p.InstallationAt, &p.CompletedAt,
		&p.CreatedAt, &p.UpdatedAt, &p.Active, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProjects(rows pgx.Rows) ([]model.Project, error) {
	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperr.Unexpected("failed to scan project", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unexpected("failed to read project rows", err)
	}
	return projects, nil
}
