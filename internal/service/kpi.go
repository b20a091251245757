package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"installflow/internal/model"
	"installflow/internal/stage"
	"installflow/pkg/metrics"
)

// Revenue is recognized once installation is done (stage 10 onwards).
const revenueRecognitionStage = 10

// KPISnapshot is the portfolio summary the dashboards render.
type KPISnapshot struct {
	ActiveProjects      int     `json:"active_projects"`
	WeeklyInstallations int     `json:"weekly_installations"`
	PendingMeasurements int     `json:"pending_measurements"`
	OverdueActions      int     `json:"overdue_actions"`
	MonthlyRevenue      float64 `json:"monthly_revenue"`
	CompletionRate      int     `json:"completion_rate"`
}

// ComputeKPIs derives the six portfolio metrics from a project slice in one
// pass. The overdue count uses the per-stage SLA table, not a flat staleness
// cutoff. Weeks start on Monday in now's location.
func ComputeKPIs(projects []model.Project, now time.Time) KPISnapshot {
	weekStart := startOfWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var snap KPISnapshot
	completed := 0

	for i := range projects {
		p := &projects[i]

		if p.CurrentStage < stage.Last {
			snap.ActiveProjects++
		} else {
			completed++
		}
		if p.CurrentStage == stage.First {
			snap.PendingMeasurements++
		}
		if p.InstallationAt != nil && inRange(*p.InstallationAt, weekStart, weekEnd) {
			snap.WeeklyInstallations++
		}
		if IsOverdue(p, now) {
			snap.OverdueActions++
		}
		if p.CurrentStage >= revenueRecognitionStage &&
			p.CompletedAt != nil && inRange(*p.CompletedAt, monthStart, monthEnd) {
			snap.MonthlyRevenue += p.Value
		}
	}

	if total := len(projects); total > 0 {
		snap.CompletionRate = int(math.Round(100 * float64(completed) / float64(total)))
	}

	return snap
}

// startOfWeek returns midnight of the Monday of the week containing t.
func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// KPIService serves cached snapshots per organization. The cache is a plain
// best-effort layer: redis being down just means every request recomputes.
type KPIService struct {
	projects ProjectStore
	cache    *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewKPIService builds the aggregator. cache may be nil to disable caching.
func NewKPIService(projects ProjectStore, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *KPIService {
	return &KPIService{
		projects: projects,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Snapshot returns the KPI snapshot for one organization. Snapshots may lag
// in-flight transitions by up to the cache TTL, which the dashboards accept.
func (s *KPIService) Snapshot(ctx context.Context, orgID string) (*KPISnapshot, error) {
	key := "kpi:" + orgID

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var snap KPISnapshot
			if err := json.Unmarshal(cached, &snap); err == nil {
				metrics.KPICacheCount.WithLabelValues("hit").Inc()
				return &snap, nil
			}
		}
		metrics.KPICacheCount.WithLabelValues("miss").Inc()
	}

	projects, err := s.projects.ListActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	snap := ComputeKPIs(projects, s.now())

	if s.cache != nil {
		body, err := json.Marshal(snap)
		if err == nil {
			if err := s.cache.Set(ctx, key, body, s.ttl).Err(); err != nil {
				s.logger.Warn("failed to cache kpi snapshot",
					zap.String("org_id", orgID),
					zap.Error(err),
				)
			}
		}
	}

	return &snap, nil
}
