package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperpilot/internal/config"
	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
	"github.com/xxxsen/paperpilot/internal/repo"
	"github.com/xxxsen/paperpilot/internal/service"
	"github.com/xxxsen/paperpilot/test/testutil"
)

type scriptedGenerator struct {
	reply string
	err   error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.reply, g.err
}

func seedPlanDocs(t *testing.T, docs *repo.DocumentRepo, userID string) func() {
	t.Helper()
	now := timeutil.NowMilli()
	seeded := []*model.Document{
		{ID: userID + "-hard", UserID: userID, Title: "hard paper", State: model.DocumentStateIndexed, Complexity: 6, Ctime: now, Mtime: now},
		{ID: userID + "-easy", UserID: userID, Title: "easy paper", State: model.DocumentStateIndexed, Complexity: 2, Ctime: now + 1, Mtime: now + 1},
	}
	for _, d := range seeded {
		require.NoError(t, docs.Create(context.Background(), d))
	}
	return func() {
		for _, d := range seeded {
			_ = docs.Delete(context.Background(), userID, d.ID)
		}
	}
}

func TestPlanServiceCreateAndProgress(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	planRepo := repo.NewPlanRepo(db)
	docRepo := repo.NewDocumentRepo(db)
	docCleanup := seedPlanDocs(t, docRepo, "user-psvc-1")
	defer docCleanup()

	svc := service.NewPlanService(planRepo, docRepo, &scriptedGenerator{reply: "Deep dive week\nRead the hard paper first."},
		nil, config.PlanConfig{MinutesPerDay: 120, MaxSessionsPerDay: 4})

	goal := model.StudyGoal{
		Objective:   "qualify for candidacy exam",
		Deadline:    timeutil.NowMilli() + 14*24*3600*1000,
		DocumentIDs: []string{"user-psvc-1-hard", "user-psvc-1-easy"},
	}
	created, err := svc.Create(context.Background(), "user-psvc-1", goal)
	require.NoError(t, err)
	defer func() { _ = svc.Delete(context.Background(), "user-psvc-1", created.ID) }()

	require.Equal(t, "Deep dive week", created.Title)
	require.Equal(t, "Read the hard paper first.", created.Tips)
	require.Len(t, created.Sessions, 8) // complexity 6 + 2
	require.False(t, created.Infeasible)
	for _, s := range created.Sessions {
		require.NotEmpty(t, s.ID)
		require.Equal(t, created.ID, s.PlanID)
	}
	// Hardest document gets the earliest slots.
	require.Equal(t, "user-psvc-1-hard", created.Sessions[0].DocumentID)

	updated, err := svc.RecordProgress(context.Background(), "user-psvc-1", created.ID, created.Sessions[0].ID, service.ProgressCompleted)
	require.NoError(t, err)
	completed := 0
	for _, s := range updated.Sessions {
		if s.State == model.SessionStateCompleted {
			completed++
			require.Equal(t, created.Sessions[0].ID, s.ID)
		}
	}
	require.Equal(t, 1, completed)

	// A completed session cannot be progressed again.
	_, err = svc.RecordProgress(context.Background(), "user-psvc-1", created.ID, created.Sessions[0].ID, service.ProgressSkipped)
	require.ErrorIs(t, err, appErr.ErrConflict)
}

func TestPlanServiceBlurbFailureFallsBack(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	planRepo := repo.NewPlanRepo(db)
	docRepo := repo.NewDocumentRepo(db)
	docCleanup := seedPlanDocs(t, docRepo, "user-psvc-2")
	defer docCleanup()

	svc := service.NewPlanService(planRepo, docRepo, &scriptedGenerator{err: appErr.ErrBackendBusy},
		nil, config.PlanConfig{MinutesPerDay: 120, MaxSessionsPerDay: 4})

	goal := model.StudyGoal{
		Objective:   "survey retrieval methods",
		DocumentIDs: []string{"user-psvc-2-easy"},
	}
	created, err := svc.Create(context.Background(), "user-psvc-2", goal)
	require.NoError(t, err)
	defer func() { _ = svc.Delete(context.Background(), "user-psvc-2", created.ID) }()

	// The deterministic schedule is authoritative; a blurb failure only
	// costs the generated title.
	require.Equal(t, "survey retrieval methods", created.Title)
	require.Len(t, created.Sessions, 2)
}
