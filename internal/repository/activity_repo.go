package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"installflow/internal/apperr"
	"installflow/internal/model"
	"installflow/pkg/metrics"
)

// ActivityRepository is append-only: there are deliberately no update or
// delete methods, the audit trail is immutable.
type ActivityRepository struct {
	db *pgxpool.Pool
}

func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Insert(ctx context.Context, rec *model.ActivityRecord) error {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("insert", "project_activity", time.Since(start))

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return apperr.Unexpected("failed to marshal activity metadata", err)
	}

	query := `
        INSERT INTO project_activity (
            id, project_id, user_id, action, from_stage, to_stage,
            description, metadata, created_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `
	_, err = r.db.Exec(ctx, query,
		rec.ID, rec.ProjectID, rec.UserID, rec.Action,
		rec.FromStage, rec.ToStage, rec.Description, meta, rec.CreatedAt,
	)
	if err != nil {
		return apperr.Unexpected("failed to insert activity record", err)
	}
	return nil
}

// ListByProject returns a project's audit trail, newest first.
func (r *ActivityRepository) ListByProject(ctx context.Context, projectID string) ([]model.ActivityRecord, error) {
	start := time.Now()
	defer metrics.RecordDBQueryDuration("select", "project_activity", time.Since(start))

	query := `
        SELECT id, project_id, user_id, action, from_stage, to_stage,
               description, metadata, created_at
        FROM project_activity
        WHERE project_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, apperr.Unexpected("failed to list activity records", err)
	}
	defer rows.Close()

	records := []model.ActivityRecord{}
	for rows.Next() {
		var rec model.ActivityRecord
		var meta []byte
		err := rows.Scan(
			&rec.ID, &rec.ProjectID, &rec.UserID, &rec.Action,
			&rec.FromStage, &rec.ToStage, &rec.Description, &meta, &rec.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Unexpected("failed to scan activity record", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, apperr.Unexpected("failed to unmarshal activity metadata", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unexpected("failed to read activity rows", err)
	}
	return records, nil
}
