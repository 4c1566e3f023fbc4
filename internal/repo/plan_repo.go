package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
)

type PlanRepo struct {
	db *sql.DB
}

func NewPlanRepo(db *sql.DB) *PlanRepo {
	return &PlanRepo{db: db}
}

var planFields = []string{"id", "user_id", "title", "objective", "deadline", "start_day", "infeasible", "tips", "ctime", "mtime"}
var sessionFields = []string{"id", "plan_id", "document_id", "day", "minutes", "state"}

// Save writes the plan and its full session set in one transaction. A
// reschedule replaces every stored session with the recomputed set, which
// already carries completed history through unchanged.
func (r *PlanRepo) Save(ctx context.Context, p *model.StudyPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sqlDel, delArgs := dbutil.Finalize("DELETE FROM schedule_sessions WHERE plan_id=? AND user_id=?", []interface{}{p.ID, p.UserID})
	if _, err := tx.ExecContext(ctx, sqlDel, delArgs...); err != nil {
		return err
	}
	sqlDelPlan, delPlanArgs := dbutil.Finalize("DELETE FROM study_plans WHERE id=? AND user_id=?", []interface{}{p.ID, p.UserID})
	if _, err := tx.ExecContext(ctx, sqlDelPlan, delPlanArgs...); err != nil {
		return err
	}

	sqlStr, args, err := builder.BuildInsert("study_plans", []map[string]interface{}{{
		"id":         p.ID,
		"user_id":    p.UserID,
		"title":      p.Title,
		"objective":  p.Objective,
		"deadline":   p.Deadline,
		"start_day":  p.StartDay,
		"infeasible": p.Infeasible,
		"tips":       p.Tips,
		"ctime":      p.Ctime,
		"mtime":      p.Mtime,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}

	for _, s := range p.Sessions {
		sqlStr, args, err := builder.BuildInsert("schedule_sessions", []map[string]interface{}{{
			"id":          s.ID,
			"plan_id":     p.ID,
			"user_id":     p.UserID,
			"document_id": s.DocumentID,
			"day":         s.Day,
			"minutes":     s.Minutes,
			"state":       s.State,
		}})
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PlanRepo) Get(ctx context.Context, userID, planID string) (*model.StudyPlan, error) {
	sqlStr, args, err := builder.BuildSelect("study_plans", map[string]interface{}{
		"id":      planID,
		"user_id": userID,
	}, planFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sessions, err := r.listSessions(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	p.Sessions = sessions
	return p, nil
}

func (r *PlanRepo) ListByUser(ctx context.Context, userID string) ([]*model.StudyPlan, error) {
	sqlStr, args, err := builder.BuildSelect("study_plans", map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc",
	}, planFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.StudyPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		sessions, err := r.listSessions(ctx, userID, p.ID)
		if err != nil {
			return nil, err
		}
		p.Sessions = sessions
	}
	return out, nil
}

func (r *PlanRepo) Delete(ctx context.Context, userID, planID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	sqlDel, delArgs := dbutil.Finalize("DELETE FROM schedule_sessions WHERE plan_id=? AND user_id=?", []interface{}{planID, userID})
	if _, err := tx.ExecContext(ctx, sqlDel, delArgs...); err != nil {
		return err
	}
	sqlStr, args := dbutil.Finalize("DELETE FROM study_plans WHERE id=? AND user_id=?", []interface{}{planID, userID})
	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return tx.Commit()
}

// UpdateSessionState flips one session's state, refusing to touch completed
// history.
func (r *PlanRepo) UpdateSessionState(ctx context.Context, userID, sessionID string, state int) error {
	sqlStr, args := dbutil.Finalize(
		"UPDATE schedule_sessions SET state=? WHERE id=? AND user_id=? AND state<>?",
		[]interface{}{state, sessionID, userID, model.SessionStateCompleted})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *PlanRepo) listSessions(ctx context.Context, userID, planID string) ([]model.ScheduleSession, error) {
	sqlStr, args, err := builder.BuildSelect("schedule_sessions", map[string]interface{}{
		"plan_id":  planID,
		"user_id":  userID,
		"_orderby": "day asc, id asc",
	}, sessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ScheduleSession
	for rows.Next() {
		var s model.ScheduleSession
		if err := rows.Scan(&s.ID, &s.PlanID, &s.DocumentID, &s.Day, &s.Minutes, &s.State); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveGoals derives goal probes for the insight engine from plans that
// still have open sessions.
func (r *PlanRepo) ActiveGoals(ctx context.Context, userID string) ([]model.StudyGoal, error) {
	plans, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.StudyGoal
	for _, p := range plans {
		open := false
		docSeen := map[string]struct{}{}
		var docIDs []string
		for _, s := range p.Sessions {
			if s.State == model.SessionStateScheduled {
				open = true
			}
			if s.DocumentID != "" {
				if _, ok := docSeen[s.DocumentID]; !ok {
					docSeen[s.DocumentID] = struct{}{}
					docIDs = append(docIDs, s.DocumentID)
				}
			}
		}
		if !open || p.Objective == "" {
			continue
		}
		out = append(out, model.StudyGoal{
			Objective:   p.Objective,
			Deadline:    p.Deadline,
			DocumentIDs: docIDs,
		})
	}
	return out, nil
}

func scanPlan(row rowScanner) (*model.StudyPlan, error) {
	var p model.StudyPlan
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Objective, &p.Deadline,
		&p.StartDay, &p.Infeasible, &p.Tips, &p.Ctime, &p.Mtime)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
