package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"installflow/internal/apperr"
	"installflow/internal/model"
	"installflow/internal/repository"
	"installflow/internal/service"
	"installflow/internal/stage"
	"installflow/internal/util"
)

const testSecret = "test-secret"

// fakeStore backs both the CRUD handlers and the transition coordinator in
// tests, mirroring the SQL repository's semantics (forced stage 1 on create,
// version compare-and-swap on stage writes, soft delete).
type fakeStore struct {
	mu       sync.Mutex
	projects map[string]*model.Project
	activity []model.ActivityRecord
}

func newFakeStore(projects ...*model.Project) *fakeStore {
	s := &fakeStore{projects: make(map[string]*model.Project)}
	for _, p := range projects {
		cp := *p
		s.projects[p.ID] = &cp
	}
	return s
}

func (s *fakeStore) Create(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	p.CurrentStage = stage.First
	p.Active = true
	p.Version = 1
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, apperr.NotFound("project %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) List(_ context.Context, f repository.ProjectFilter) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Project{}
	for _, p := range s.projects {
		if f.OrgID != "" && p.OrgID != f.OrgID {
			continue
		}
		if f.Branch != "" && p.Branch != f.Branch {
			continue
		}
		if f.InstallerID != "" && p.InstallerID != f.InstallerID {
			continue
		}
		if f.Stage != nil && p.CurrentStage != *f.Stage {
			continue
		}
		if f.Active != nil && p.Active != *f.Active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, id string, patch repository.ProjectPatch) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, apperr.NotFound("project %s not found", id)
	}
	if patch.ClientName != nil {
		p.ClientName = *patch.ClientName
	}
	if patch.Value != nil {
		p.Value = *patch.Value
	}
	if patch.InstallationAt != nil {
		p.InstallationAt = patch.InstallationAt
	}
	if patch.CompletedAt != nil {
		p.CompletedAt = patch.CompletedAt
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (s *fakeStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return apperr.NotFound("project %s not found", id)
	}
	p.Active = false
	return nil
}

func (s *fakeStore) UpdateStage(_ context.Context, id string, newStage, expectedVersion int, now time.Time) (*model.Project, error) {
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

func (s *fakeStore) ListActiveByOrg(_ context.Context, orgID string) ([]model.Project, error) {
	active := true
	return s.List(context.Background(), repository.ProjectFilter{OrgID: orgID, Active: &active})
}

func (s *fakeStore) Insert(_ context.Context, rec *model.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, *rec)
	return nil
}

func (s *fakeStore) ListByProject(_ context.Context, projectID string) ([]model.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ActivityRecord{}
	for _, rec := range s.activity {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	err error
}

func (n *fakeNotifier) NotifyStageChange(context.Context, *model.Project, int, int, string) service.NotifyResult {
	if n.err != nil {
		return service.NotifyResult{Sent: false, Err: n.err}
	}
	return service.NotifyResult{Sent: true, MessageID: "msg-test"}
}

func newTestRouter(store *fakeStore, notifier service.Notifier) *Router {
	log := zap.NewNop()
	transitions := service.NewTransitionService(store, store, notifier, log)
	kpi := service.NewKPIService(store, nil, time.Minute, log)

	projectHandler := NewProjectHandler(store, store)
	stageHandler := NewStageHandler(transitions, store)
	kpiHandler := NewKPIHandler(kpi)

	return NewRouter(projectHandler, stageHandler, kpiHandler, testSecret)
}

func authToken(t *testing.T, userID, orgID string) string {
	t.Helper()
	token, err := util.GenerateJWT(userID, orgID, testSecret)
	if err != nil {
		t.Fatalf("failed to mint test token: %v", err)
	}
	return token
}

func doRequest(router *Router, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)
	return w
}

func seedProject(id, orgID string, stageNum int) *model.Project {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &model.Project{
		ID:           id,
		OrgID:        orgID,
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
