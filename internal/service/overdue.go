package service

import (
	"math"
	"time"

	"installflow/internal/model"
	"installflow/internal/stage"
)

// IsOverdue reports whether a project has sat untouched past its current
// stage's SLA threshold. Stages without a configured threshold never become
// overdue. Pure: identical inputs always yield the same answer.
func IsOverdue(p *model.Project, now time.Time) bool {
	threshold, ok := stage.Threshold(p.CurrentStage)
	if !ok {
		return false
	}
	daysSinceUpdate := int(math.Floor(now.Sub(p.UpdatedAt).Hours() / 24))
	return daysSinceUpdate > threshold
}
