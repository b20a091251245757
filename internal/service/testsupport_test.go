package service

import (
	"context"
	"sync"
	"time"

	"installflow/internal/apperr"
	"installflow/internal/model"
)

// memProjectStore implements ProjectStore in memory with the same
// compare-and-swap stage-write semantics as the SQL repository.
type memProjectStore struct {
	mu       sync.Mutex
	projects map[string]*model.Project

	// beforeStageWrite, when set, runs at the top of UpdateStage without
	// the lock held. Tests use it as a barrier to force write interleaving.
	beforeStageWrite func()
}

func newMemProjectStore(projects ...*model.Project) *memProjectStore {
	s := &memProjectStore{projects: make(map[string]*model.Project)}
	for _, p := range projects {
		cp := *p
		s.projects[p.ID] = &cp
	}
	return s
}

func (s *memProjectStore) FindByID(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, apperr.NotFound("project %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (s *memProjectStore) UpdateStage(_ context.Context, id string, newStage, expectedVersion int, now time.Time) (*model.Project, error) {
	if s.beforeStageWrite != nil {
		s.beforeStageWrite()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, apperr.NotFound("project %s not found", id)
	}
	if !p.Active {
		return nil, apperr.NotFound("project %s is inactive", id)
	}
	if p.Version != expectedVersion {
		return nil, apperr.Conflict("project %s was modified concurrently", id)
	}

	p.CurrentStage = newStage
	p.UpdatedAt = now
	p.Version++
	cp := *p
	return &cp, nil
}

func (s *memProjectStore) ListActiveByOrg(_ context.Context, orgID string) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Project{}
	for _, p := range s.projects {
		if p.Active && p.OrgID == orgID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memActivityStore struct {
	mu      sync.Mutex
	records []model.ActivityRecord
	failErr error
}

func (s *memActivityStore) Insert(_ context.Context, rec *model.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *memActivityStore) all() []model.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ActivityRecord, len(s.records))
	copy(out, s.records)
	return out
}

type notifyCall struct {
	projectID string
	fromStage int
	toStage   int
}

type stubNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *stubNotifier) NotifyStageChange(_ context.Context, p *model.Project, fromStage, toStage int, _ string) NotifyResult {
	n.mu.Lock()
	n.calls = append(n.calls, notifyCall{projectID: p.ID, fromStage: fromStage, toStage: toStage})
	n.mu.Unlock()
	if n.err != nil {
		return NotifyResult{Sent: false, Err: n.err}
	}
	return NotifyResult{Sent: true, MessageID: "msg-test"}
}

func (n *stubNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func testProject(id string, stageNum int) *model.Project {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &model.Project{
		ID:           id,
		OrgID:        "org-1",
		Branch:       "north",
		ClientName:   "A. Customer",
		ServiceType:  "kitchen",
		Value:        1200,
		CurrentStage: stageNum,
		CreatedAt:    now,
		UpdatedAt:    now,
		Active:       true,
		Version:      1,
	}
}
