package model

const (
	SessionStateScheduled   = 1
	SessionStateCompleted   = 2
	SessionStateSkipped     = 3
	SessionStateRescheduled = 4
)

// PlanState is derived from session states and the deadline, never stored
// as authoritative data.
const (
	PlanStateOnTrack   = "on-track"
	PlanStateBehind    = "behind"
	PlanStateAhead     = "ahead"
	PlanStateCompleted = "completed"
)

type StudyGoal struct {
	Objective   string   `json:"objective"`
	Deadline    int64    `json:"deadline,omitempty"` // unix milli, 0 = open-ended
	DocumentIDs []string `json:"document_ids"`       // empty = whole library
}

// ScheduleSession places one study slot on a calendar day. Day counts from
// the plan start (0 = plan creation day). DocumentID is empty for review
// sessions.
type ScheduleSession struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	DocumentID string `json:"document_id,omitempty"`
	Day        int    `json:"day"`
	Minutes    int    `json:"minutes"`
	State      int    `json:"state"`
}

type StudyPlan struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Title      string            `json:"title"`
	Objective  string            `json:"objective"`
	Deadline   int64             `json:"deadline,omitempty"`
	StartDay   int64             `json:"start_day"` // unix milli, midnight of creation day
	Infeasible bool              `json:"infeasible"`
	Tips       string            `json:"tips,omitempty"`
	Sessions   []ScheduleSession `json:"sessions"`
	Ctime      int64             `json:"ctime"`
	Mtime      int64             `json:"mtime"`
}
