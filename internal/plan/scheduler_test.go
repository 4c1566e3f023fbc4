package plan

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
)

var planNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func deadlineIn(days int) int64 {
	return timeutil.StartOfDay(planNow).AddDate(0, 0, days-1).UnixMilli()
}

func countByDay(sessions []model.ScheduleSession) map[int]int {
	out := map[int]int{}
	for _, s := range sessions {
		if s.State == model.SessionStateScheduled {
			out[s.Day]++
		}
	}
	return out
}

func TestBuildFitsBeforeDeadlineWhenCapacitySuffices(t *testing.T) {
	goal := model.StudyGoal{Deadline: deadlineIn(5)}
	docs := []DocumentInfo{
		{ID: "a", Complexity: 3, Uploaded: 1},
		{ID: "b", Complexity: 2, Uploaded: 2},
	}
	res := Build(goal, docs, Config{MinutesPerDay: 120, MaxSessionsPerDay: 4}, planNow)
	require.False(t, res.Infeasible)
	require.Len(t, res.Sessions, 5)
	for _, s := range res.Sessions {
		require.Less(t, s.Day, 5, "every session inside the window")
		require.Positive(t, s.Minutes)
	}
}

func TestBuildCompressesInsteadOfDropping(t *testing.T) {
	// Four days, complexities 2 and 6: eight sessions only fit at two per
	// day. The harder document goes first and nothing is dropped.
	goal := model.StudyGoal{Deadline: deadlineIn(4)}
	docs := []DocumentInfo{
		{ID: "easy", Complexity: 2, Uploaded: 1},
		{ID: "hard", Complexity: 6, Uploaded: 2},
	}
	res := Build(goal, docs, Config{MinutesPerDay: 120, MaxSessionsPerDay: 4}, planNow)
	require.False(t, res.Infeasible)
	require.Len(t, res.Sessions, 8)

	perDoc := map[string]int{}
	firstEasyIdx, lastHardIdx := -1, -1
	for i, s := range res.Sessions {
		perDoc[s.DocumentID]++
		if s.DocumentID == "easy" && firstEasyIdx == -1 {
			firstEasyIdx = i
		}
		if s.DocumentID == "hard" {
			lastHardIdx = i
		}
		require.Less(t, s.Day, 4)
	}
	require.Equal(t, 6, perDoc["hard"])
	require.Equal(t, 2, perDoc["easy"], "easy sessions compressed, not dropped")
	require.Greater(t, firstEasyIdx, lastHardIdx, "harder document scheduled first")
	for _, n := range countByDay(res.Sessions) {
		require.LessOrEqual(t, n, 2)
	}
}

func TestBuildReportsInfeasibleWithBestEffort(t *testing.T) {
	goal := model.StudyGoal{Deadline: deadlineIn(2)}
	docs := []DocumentInfo{{ID: "a", Complexity: 6, Uploaded: 1}}
	res := Build(goal, docs, Config{MinutesPerDay: 120, MaxSessionsPerDay: 2}, planNow)
	require.True(t, res.Infeasible)
	require.Len(t, res.Sessions, 6, "best effort keeps every session")
	for _, n := range countByDay(res.Sessions) {
		require.LessOrEqual(t, n, 2)
	}
}

func TestBuildTieBreakNewerFirst(t *testing.T) {
	goal := model.StudyGoal{Deadline: deadlineIn(2)}
	docs := []DocumentInfo{
		{ID: "older", Complexity: 1, Uploaded: 10},
		{ID: "newer", Complexity: 1, Uploaded: 20},
	}
	res := Build(goal, docs, Config{}, planNow)
	require.Equal(t, "newer", res.Sessions[0].DocumentID)
	require.Equal(t, "older", res.Sessions[1].DocumentID)
}

func TestBuildOpenEndedGoalOneSessionPerDay(t *testing.T) {
	docs := []DocumentInfo{{ID: "a", Complexity: 3, Uploaded: 1}}
	res := Build(model.StudyGoal{}, docs, Config{}, planNow)
	require.False(t, res.Infeasible)
	require.Len(t, res.Sessions, 3)
	for i, s := range res.Sessions {
		require.Equal(t, i, s.Day)
	}
}

func buildPlan(t *testing.T, days int, docs []DocumentInfo, cfg Config) *model.StudyPlan {
	goal := model.StudyGoal{Deadline: deadlineIn(days)}
	res := Build(goal, docs, cfg, planNow)
	require.False(t, res.Infeasible)
	sessions := res.Sessions
	for i := range sessions {
		sessions[i].ID = string(rune('A' + i))
	}
	return &model.StudyPlan{
		ID:       "p1",
		Deadline: goal.Deadline,
		StartDay: timeutil.StartOfDay(planNow).UnixMilli(),
		Sessions: sessions,
	}
}

func TestRescheduleKeepsCompletedSessionsImmutable(t *testing.T) {
	docs := []DocumentInfo{
		{ID: "a", Complexity: 2, Uploaded: 1},
		{ID: "b", Complexity: 2, Uploaded: 2},
	}
	cfg := Config{MinutesPerDay: 120, MaxSessionsPerDay: 4}
	p := buildPlan(t, 4, docs, cfg)

	p.Sessions[0].State = model.SessionStateCompleted
	frozen := p.Sessions[0]

	res := Reschedule(p, docs, cfg, planNow.AddDate(0, 0, 1))
	require.False(t, res.Infeasible)
	var found *model.ScheduleSession
	for i := range res.Sessions {
		if res.Sessions[i].ID == frozen.ID {
			found = &res.Sessions[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, frozen, *found, "completed session never reshuffled")

	// total work is conserved: completed + rescheduled covers all four
	require.Len(t, res.Sessions, 4)
}

func TestRescheduleCompletedEarlyDecreasesDensity(t *testing.T) {
	docs := []DocumentInfo{{ID: "a", Complexity: 8, Uploaded: 1}}
	cfg := Config{MinutesPerDay: 120, MaxSessionsPerDay: 4}
	p := buildPlan(t, 4, docs, cfg) // 8 sessions over 4 days = 2/day

	// user storms through six sessions in the first day
	for i := 0; i < 6; i++ {
		p.Sessions[i].State = model.SessionStateCompleted
	}
	res := Reschedule(p, docs, cfg, planNow.AddDate(0, 0, 1))
	require.False(t, res.Infeasible)

	counts := countByDay(res.Sessions)
	for day, n := range counts {
		require.Less(t, n, 2, "ahead of schedule spaces sessions out")
		require.GreaterOrEqual(t, day, 1, "remaining work spread from today on")
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	require.Equal(t, 2, total)
}

func TestRescheduleSkippedWorkComesBack(t *testing.T) {
	docs := []DocumentInfo{{ID: "a", Complexity: 2, Uploaded: 1}}
	cfg := Config{MinutesPerDay: 120, MaxSessionsPerDay: 4}
	p := buildPlan(t, 4, docs, cfg)

	p.Sessions[0].State = model.SessionStateSkipped
	res := Reschedule(p, docs, cfg, planNow.AddDate(0, 0, 1))

	scheduled := 0
	skippedKept := false
	for _, s := range res.Sessions {
		switch s.State {
		case model.SessionStateScheduled:
			scheduled++
		case model.SessionStateSkipped:
			skippedKept = true
		}
	}
	require.Equal(t, 2, scheduled, "skipped work is allocated again")
	require.True(t, skippedKept, "skip stays visible as history")
}

func TestDeriveState(t *testing.T) {
	start := timeutil.StartOfDay(planNow).UnixMilli()
	deadline := deadlineIn(4)
	mk := func(states ...int) *model.StudyPlan {
		p := &model.StudyPlan{StartDay: start, Deadline: deadline}
		for i, st := range states {
			p.Sessions = append(p.Sessions, model.ScheduleSession{Day: i, State: st})
		}
		return p
	}

	require.Equal(t, model.PlanStateOnTrack,
		DeriveState(mk(model.SessionStateScheduled, model.SessionStateScheduled), planNow))

	require.Equal(t, model.PlanStateCompleted,
		DeriveState(mk(model.SessionStateCompleted, model.SessionStateCompleted), planNow))

	// day 0 session still open on day 1
	require.Equal(t, model.PlanStateBehind,
		DeriveState(mk(model.SessionStateScheduled, model.SessionStateScheduled), planNow.AddDate(0, 0, 1)))

	// day 1 session already done on day 0
	ahead := mk(model.SessionStateCompleted, model.SessionStateScheduled)
	ahead.Sessions[0].Day = 1
	ahead.Sessions[1].Day = 2
	require.Equal(t, model.PlanStateAhead, DeriveState(ahead, planNow))

	// scheduled past the deadline window
	over := mk(model.SessionStateScheduled)
	over.Sessions[0].Day = 9
	require.Equal(t, model.PlanStateBehind, DeriveState(over, planNow))
}

func TestEstimateComplexityOrdering(t *testing.T) {
	short := "A quick note."
	long := strings.Repeat("# Section\n"+strings.Repeat("The eigendecomposition converges when lambda_1 > lambda_2. ", 40), 6)

	cShort := EstimateComplexity(short)
	cLong := EstimateComplexity(long)
	require.GreaterOrEqual(t, cShort, 1)
	require.LessOrEqual(t, cLong, 10)
	require.Greater(t, cLong, cShort)
	require.Equal(t, 1, EstimateComplexity("   "))
}
