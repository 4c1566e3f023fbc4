package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
	"github.com/xxxsen/paperpilot/internal/repo"
	"github.com/xxxsen/paperpilot/test/testutil"
)

func testPlan(userID, planID string) *model.StudyPlan {
	now := timeutil.NowMilli()
	return &model.StudyPlan{
		ID:        planID,
		UserID:    userID,
		Title:     "Thesis prep",
		Objective: "transformer architectures",
		Deadline:  now + 7*24*3600*1000,
		StartDay:  now,
		Sessions: []model.ScheduleSession{
			{ID: planID + "-s1", PlanID: planID, DocumentID: "doc-1", Day: 0, Minutes: 60, State: model.SessionStateScheduled},
			{ID: planID + "-s2", PlanID: planID, DocumentID: "doc-2", Day: 1, Minutes: 60, State: model.SessionStateScheduled},
		},
		Ctime: now,
		Mtime: now,
	}
}

func TestPlanRepoSaveReplacesSessions(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	plans := repo.NewPlanRepo(db)
	p := testPlan("user-plan-1", "plan-1")
	require.NoError(t, plans.Save(context.Background(), p))
	defer func() { _ = plans.Delete(context.Background(), "user-plan-1", "plan-1") }()

	fetched, err := plans.Get(context.Background(), "user-plan-1", "plan-1")
	require.NoError(t, err)
	require.Len(t, fetched.Sessions, 2)

	// Save again with a different session set, the old set must be gone.
	p.Sessions = []model.ScheduleSession{
		{ID: "plan-1-s3", PlanID: "plan-1", DocumentID: "doc-1", Day: 2, Minutes: 30, State: model.SessionStateScheduled},
	}
	require.NoError(t, plans.Save(context.Background(), p))

	fetched, err = plans.Get(context.Background(), "user-plan-1", "plan-1")
	require.NoError(t, err)
	require.Len(t, fetched.Sessions, 1)
	require.Equal(t, "plan-1-s3", fetched.Sessions[0].ID)

	_, err = plans.Get(context.Background(), "user-plan-2", "plan-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestPlanRepoCompletedSessionImmutable(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	plans := repo.NewPlanRepo(db)
	p := testPlan("user-plan-imm", "plan-imm")
	require.NoError(t, plans.Save(context.Background(), p))
	defer func() { _ = plans.Delete(context.Background(), "user-plan-imm", "plan-imm") }()

	require.NoError(t, plans.UpdateSessionState(context.Background(), "user-plan-imm", "plan-imm-s1", model.SessionStateCompleted))

	err := plans.UpdateSessionState(context.Background(), "user-plan-imm", "plan-imm-s1", model.SessionStateSkipped)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	fetched, err := plans.Get(context.Background(), "user-plan-imm", "plan-imm")
	require.NoError(t, err)
	for _, s := range fetched.Sessions {
		if s.ID == "plan-imm-s1" {
			require.Equal(t, model.SessionStateCompleted, s.State)
		}
	}
}

func TestPlanRepoActiveGoals(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	plans := repo.NewPlanRepo(db)
	p := testPlan("user-plan-goal", "plan-goal")
	require.NoError(t, plans.Save(context.Background(), p))
	defer func() { _ = plans.Delete(context.Background(), "user-plan-goal", "plan-goal") }()

	goals, err := plans.ActiveGoals(context.Background(), "user-plan-goal")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.Equal(t, "transformer architectures", goals[0].Objective)

	// Completing every session retires the goal.
	require.NoError(t, plans.UpdateSessionState(context.Background(), "user-plan-goal", "plan-goal-s1", model.SessionStateCompleted))
	require.NoError(t, plans.UpdateSessionState(context.Background(), "user-plan-goal", "plan-goal-s2", model.SessionStateCompleted))

	goals, err = plans.ActiveGoals(context.Background(), "user-plan-goal")
	require.NoError(t, err)
	require.Empty(t, goals)
}
