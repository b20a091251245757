package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"installflow/internal/apperr"
	"installflow/internal/model"
)

func newTestTransitionService(projects *memProjectStore, activity *memActivityStore, notifier *stubNotifier) *TransitionService {
	s := NewTransitionService(projects, activity, notifier, zap.NewNop())
	s.now = func() time.Time {
		return time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	}
	return s
}

func TestTransition_RejectsInvalidStage(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 3))
	activity := &memActivityStore{}
	svc := newTestTransitionService(projects, activity, &stubNotifier{})

	for _, bad := range []int{0, 13, -1, 100} {
		_, err := svc.Transition(context.Background(), TransitionInput{
			ProjectID: "p1",
			NewStage:  bad,
			UserID:    "u1",
		})
		require.Error(t, err, "stage %d must be rejected", bad)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "stage %d: expected validation error, got %v", bad, err)
	}

	// Nothing was written for rejected requests.
	assert.Empty(t, activity.all())
	p, err := projects.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.CurrentStage)
}

func TestTransition_AcceptsAllTwelveStages(t *testing.T) {
	for s := 1; s <= 12; s++ {
		projects := newMemProjectStore(testProject("p1", 6))
		svc := newTestTransitionService(projects, &memActivityStore{}, &stubNotifier{})

		res, err := svc.Transition(context.Background(), TransitionInput{
			ProjectID: "p1",
			NewStage:  s,
			UserID:    "u1",
		})
		require.NoError(t, err, "stage %d must be accepted", s)
		assert.Equal(t, 6, res.FromStage)
		assert.Equal(t, s, res.ToStage)
		assert.Equal(t, s, res.Project.CurrentStage)
	}
}

func TestTransition_MissingProject(t *testing.T) {
	svc := newTestTransitionService(newMemProjectStore(), &memActivityStore{}, &stubNotifier{})

	_, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "nope",
		NewStage:  4,
		UserID:    "u1",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestTransition_InactiveProject(t *testing.T) {
	p := testProject("p1", 3)
	p.Active = false
	svc := newTestTransitionService(newMemProjectStore(p), &memActivityStore{}, &stubNotifier{})

	_, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "p1",
		NewStage:  4,
		UserID:    "u1",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestTransition_WritesSingleActivityRecord(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 3))
	activity := &memActivityStore{}
	notifier := &stubNotifier{}
	svc := newTestTransitionService(projects, activity, notifier)

	res, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "p1",
		NewStage:  5,
		UserID:    "u1",
		Metadata:  map[string]any{"reason": "customer approved quote"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.FromStage)
	assert.Equal(t, 5, res.ToStage)
	assert.Equal(t, 5, res.Project.CurrentStage)

	records := activity.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "p1", rec.ProjectID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, model.ActionStageChanged, rec.Action)
	assert.Equal(t, 3, rec.FromStage)
	assert.Equal(t, 5, rec.ToStage)

	// Caller metadata is preserved and merged with the audit fields.
	assert.Equal(t, "customer approved quote", rec.Metadata["reason"])
	assert.Equal(t, "u1", rec.Metadata["updated_by"])
	assert.Equal(t, "api", rec.Metadata["method"])
	assert.NotEmpty(t, rec.Metadata["updated_at"])

	require.NotNil(t, res.Notification)
	assert.True(t, res.Notification.Sent)
	assert.Equal(t, "msg-test", res.Notification.MessageID)
}

func TestTransition_SameStageIsAcceptedAndLogged(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 7))
	activity := &memActivityStore{}
	svc := newTestTransitionService(projects, activity, &stubNotifier{})

	res, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "p1",
		NewStage:  7,
		UserID:    "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.FromStage)
	assert.Equal(t, 7, res.ToStage)

	records := activity.all()
	require.Len(t, records, 1)
	assert.Equal(t, 7, records[0].FromStage)
	assert.Equal(t, 7, records[0].ToStage)
}

func TestTransition_BackwardMoveIsAllowed(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 9))
	svc := newTestTransitionService(projects, &memActivityStore{}, &stubNotifier{})

	res, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "p1",
		NewStage:  2,
		UserID:    "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 9, res.FromStage)
	assert.Equal(t, 2, res.Project.CurrentStage)
}

func TestTransition_NotificationFailureDoesNotRollBack(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 3))
	activity := &memActivityStore{}
	notifier := &stubNotifier{err: errors.New("broker unreachable")}
	svc := newTestTransitionService(projects, activity, notifier)

	res, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "p1",
		NewStage:  4,
		UserID:    "u1",
	})
	require.NoError(t, err, "dispatch failure must not fail the transition")

	// The stage change is committed despite the failed dispatch.
	p, err := projects.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.CurrentStage)

	require.NotNil(t, res.Notification)
	assert.False(t, res.Notification.Sent)
	assert.Contains(t, res.Notification.Error, "broker unreachable")

	require.Len(t, activity.all(), 1)
}

func TestTransition_NotificationCanBeSkipped(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 3))
	notifier := &stubNotifier{}
	svc := newTestTransitionService(projects, &memActivityStore{}, notifier)

	off := false
	res, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID:        "p1",
		NewStage:         4,
		UserID:           "u1",
		SendNotification: &off,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Notification)
	assert.Zero(t, notifier.callCount())
}

func TestTransition_ActivityLogFailureIsNonFatal(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 3))
	activity := &memActivityStore{failErr: errors.New("audit table unavailable")}
	svc := newTestTransitionService(projects, activity, &stubNotifier{})

	res, err := svc.Transition(context.Background(), TransitionInput{
		ProjectID: "p1",
		NewStage:  4,
		UserID:    "u1",
	})
	require.NoError(t, err, "audit failure after a committed write is a warning, not an error")
	assert.Equal(t, 4, res.Project.CurrentStage)
}

// TestTransition_ConcurrentWritesConflict exercises the lost-update guard:
// two transitions race from the same read, exactly one lands, the other
// surfaces Conflict and writes no audit record.
func TestTransition_ConcurrentWritesConflict(t *testing.T) {
	projects := newMemProjectStore(testProject("p1", 3))
	activity := &memActivityStore{}
	svc := newTestTransitionService(projects, activity, &stubNotifier{})

	// Hold both writes until both goroutines have read version 1.
	var barrier sync.WaitGroup
	barrier.Add(2)
	projects.beforeStageWrite = func() {
		barrier.Done()
		barrier.Wait()
	}

	results := make([]error, 2)
	targets := []int{4, 5}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Transition(context.Background(), TransitionInput{
				ProjectID: "p1",
				NewStage:  targets[i],
				UserID:    "u1",
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	var winner int
	for i, err := range results {
		switch {
		case err == nil:
			successes++
			winner = targets[i]
		case apperr.IsKind(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one transition must win")
	assert.Equal(t, 1, conflicts, "the loser must surface Conflict")

	p, err := projects.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, winner, p.CurrentStage)
	assert.Equal(t, 2, p.Version)

	// Only the committed transition is audited.
	records := activity.all()
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].FromStage)
	assert.Equal(t, winner, records[0].ToStage)
}
