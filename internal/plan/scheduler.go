package plan

import (
	"sort"
	"time"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
)

// DocumentInfo is the scheduler's view of one paper: its study effort in
// sessions and its upload time for tie-breaking.
type DocumentInfo struct {
	ID         string
	Complexity int
	Uploaded   int64
}

type Config struct {
	MinutesPerDay     int
	MaxSessionsPerDay int
}

// Result is a computed allocation. Infeasible means not every session fits
// before the deadline even at the per-day ceiling; the overflow sessions are
// still scheduled past the deadline so the plan stays complete.
type Result struct {
	Sessions   []model.ScheduleSession
	Infeasible bool
}

func (c Config) normalized() Config {
	if c.MinutesPerDay <= 0 {
		c.MinutesPerDay = 120
	}
	if c.MaxSessionsPerDay <= 0 {
		c.MaxSessionsPerDay = 4
	}
	return c
}

func sessionsNeeded(d DocumentInfo) int {
	if d.Complexity < 1 {
		return 1
	}
	return d.Complexity
}

// byPriority orders documents by complexity pressure against the shared
// deadline, newest upload first on ties.
func byPriority(docs []DocumentInfo) []DocumentInfo {
	out := make([]DocumentInfo, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Complexity != out[j].Complexity {
			return out[i].Complexity > out[j].Complexity
		}
		return out[i].Uploaded > out[j].Uploaded
	})
	return out
}

// Build produces the initial allocation for a goal. Sessions get day slots
// counted from the plan start day; session ids are left for the caller to
// assign.
func Build(goal model.StudyGoal, docs []DocumentInfo, cfg Config, now time.Time) Result {
	cfg = cfg.normalized()
	total := 0
	for _, d := range docs {
		total += sessionsNeeded(d)
	}
	if total == 0 {
		return Result{}
	}
	days := availableDays(goal.Deadline, now, total)
	return allocate(byPriority(docs), nil, 0, days, total, cfg)
}

// Reschedule re-runs the allocation over the remaining work after a
// progress event. Completed sessions are immutable history and are carried
// through untouched; skipped sessions stay as markers and their work is
// allocated again.
func Reschedule(p *model.StudyPlan, docs []DocumentInfo, cfg Config, now time.Time) Result {
	cfg = cfg.normalized()
	elapsed := elapsedDays(p.StartDay, now)

	done := make(map[string]int)
	var kept []model.ScheduleSession
	for _, s := range p.Sessions {
		switch s.State {
		case model.SessionStateCompleted:
			done[s.DocumentID]++
			kept = append(kept, s)
		case model.SessionStateSkipped:
			kept = append(kept, s)
		}
	}

	var remaining []DocumentInfo
	total := 0
	for _, d := range docs {
		left := sessionsNeeded(d) - done[d.ID]
		if left <= 0 {
			continue
		}
		remaining = append(remaining, DocumentInfo{ID: d.ID, Complexity: left, Uploaded: d.Uploaded})
		total += left
	}
	if total == 0 {
		return Result{Sessions: kept}
	}

	days := availableDays(p.Deadline, now, total) // counted from today
	return allocate(byPriority(remaining), kept, elapsed, days, total, cfg)
}

// allocate lays sessions onto day slots starting at firstDay. The per-day
// density is the smallest count that fits everything into the window,
// capped at the configured ceiling; when even the ceiling cannot fit the
// work the allocation runs past the window and is reported infeasible.
func allocate(docs []DocumentInfo, kept []model.ScheduleSession, firstDay, days, total int, cfg Config) Result {
	if days < 1 {
		days = 1
	}
	perDay := (total + days - 1) / days
	infeasible := false
	if perDay > cfg.MaxSessionsPerDay {
		perDay = cfg.MaxSessionsPerDay
		infeasible = true
	}
	if perDay < 1 {
		perDay = 1
	}
	minutes := cfg.MinutesPerDay / perDay

	sessions := append([]model.ScheduleSession(nil), kept...)
	day, used := firstDay, 0
	for _, d := range docs {
		for i := 0; i < sessionsNeeded(d); i++ {
			sessions = append(sessions, model.ScheduleSession{
				DocumentID: d.ID,
				Day:        day,
				Minutes:    minutes,
				State:      model.SessionStateScheduled,
			})
			used++
			if used == perDay {
				day, used = day+1, 0
			}
		}
	}
	return Result{Sessions: sessions, Infeasible: infeasible}
}

// availableDays returns the size of the scheduling window in days starting
// today. Open-ended goals get one session per day.
func availableDays(deadline int64, now time.Time, total int) int {
	if deadline == 0 {
		return total
	}
	days := timeutil.DaysUntil(now, time.UnixMilli(deadline))
	if days < 1 {
		days = 1
	}
	return days
}

func elapsedDays(startDay int64, now time.Time) int {
	if startDay == 0 {
		return 0
	}
	d := timeutil.DaysUntil(time.UnixMilli(startDay), now) - 1
	if d < 0 {
		d = 0
	}
	return d
}

// DeriveState computes the aggregate plan state on read. A plan is behind
// when it is infeasible, has sessions past their day, or projects past the
// deadline. It is ahead when more sessions are done than the calendar has
// asked for so far.
func DeriveState(p *model.StudyPlan, now time.Time) string {
	if len(p.Sessions) == 0 {
		return model.PlanStateOnTrack
	}
	completed := 0
	due := 0
	lastScheduledDay := -1
	elapsed := elapsedDays(p.StartDay, now)
	open := 0
	overdue := false
	for _, s := range p.Sessions {
		switch s.State {
		case model.SessionStateCompleted:
			completed++
		case model.SessionStateScheduled:
			open++
			if s.Day > lastScheduledDay {
				lastScheduledDay = s.Day
			}
			if s.Day < elapsed {
				overdue = true
			}
		}
		// skipped sessions are history markers; their work shows up again
		// as fresh scheduled sessions after a reschedule
		if s.State != model.SessionStateSkipped && s.Day < elapsed {
			due++
		}
	}
	if open == 0 {
		return model.PlanStateCompleted
	}
	if p.Deadline > 0 {
		lastAllowed := timeutil.DaysUntil(time.UnixMilli(p.StartDay), time.UnixMilli(p.Deadline)) - 1
		if lastScheduledDay > lastAllowed {
			return model.PlanStateBehind
		}
	}
	if p.Infeasible || overdue {
		return model.PlanStateBehind
	}
	if completed > due {
		return model.PlanStateAhead
	}
	return model.PlanStateOnTrack
}
